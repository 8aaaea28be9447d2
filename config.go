package boardcal

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CalibrationConfig drives Calibrate.
type CalibrationConfig struct {
	// ImageGlob selects the checkerboard photos.
	ImageGlob string `yaml:"image_glob"`
	// Candidates are tried in order, as "RxC" inner corners.
	Candidates []string `yaml:"candidates"`
	// Force, when set, is the only geometry tried.
	Force string `yaml:"force"`
	// SquareSizeM is the printed square edge in meters.
	SquareSizeM float64 `yaml:"square_size_m"`
	Output      string  `yaml:"output"`
	DebugDir    string  `yaml:"debug_dir"`
}

// Geometries parses Candidates and Force.
func (c CalibrationConfig) Geometries() ([]BoardGeometry, *BoardGeometry, error) {
	cands, err := ParseBoardGeometries(c.Candidates)
	if err != nil {
		return nil, nil, err
	}
	if c.Force == "" {
		return cands, nil, nil
	}
	forced, err := ParseBoardGeometry(c.Force)
	if err != nil {
		return nil, nil, errors.Wrap(err, "force")
	}
	return cands, &forced, nil
}

// Validate checks the values Calibrate needs.
func (c CalibrationConfig) Validate() error {
	if c.ImageGlob == "" {
		return errors.New("calibration.image_glob is required")
	}
	if c.SquareSizeM <= 0 {
		return errors.Errorf("calibration.square_size_m must be positive, got %v", c.SquareSizeM)
	}
	if c.Output == "" {
		return errors.New("calibration.output is required")
	}
	cands, forced, err := c.Geometries()
	if err != nil {
		return err
	}
	if len(cands) == 0 && forced == nil {
		return errors.New("calibration.candidates is empty")
	}
	return nil
}

// Config is the file form of every stage's settings.
type Config struct {
	Calibration CalibrationConfig `yaml:"calibration"`
	Canonical   CanonicalConfig   `yaml:"canonical"`
	Rectify     RectifyOptions    `yaml:"rectify"`
	Grid        struct {
		BoardN      int         `yaml:"board_n"`
		LabelOrigin LabelOrigin `yaml:"label_origin"`
		DrawLabels  bool        `yaml:"draw_labels"`
	} `yaml:"grid"`
}

// DefaultConfig is what LoadConfig starts from.
func DefaultConfig() *Config {
	cands := make([]string, 0, len(DefaultCandidates))
	for _, g := range DefaultCandidates {
		cands = append(cands, g.String())
	}
	gc := DefaultGridConfig()
	cfg := &Config{
		Calibration: CalibrationConfig{
			ImageGlob:   "calib_images/*.jpg",
			Candidates:  cands,
			SquareSizeM: 0.024,
			Output:      "intrinsics.json",
			DebugDir:    "calib_debug",
		},
		Canonical: gc.Canonical,
		Rectify:   DefaultRectifyOptions(),
	}
	cfg.Grid.BoardN = gc.BoardN
	cfg.Grid.LabelOrigin = gc.LabelOrigin
	cfg.Grid.DrawLabels = gc.DrawLabels
	return cfg
}

// LoadConfig reads a YAML file over DefaultConfig. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %s", path)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "bad config %s", path)
	}
	return cfg, nil
}

// GridConfig assembles the decomposer settings.
func (c *Config) GridConfig() GridConfig {
	return GridConfig{
		Canonical:   c.Canonical,
		BoardN:      c.Grid.BoardN,
		LabelOrigin: c.Grid.LabelOrigin,
		DrawLabels:  c.Grid.DrawLabels,
	}
}

// Validate checks the rectification and grid sections. The calibration section is only
// checked when calibrating.
func (c *Config) Validate() error {
	if c.Rectify.Alpha < 0 || c.Rectify.Alpha > 1 {
		return errors.Errorf("rectify.alpha must be in [0, 1], got %v", c.Rectify.Alpha)
	}
	return c.GridConfig().Validate()
}
