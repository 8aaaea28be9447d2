package boardcal

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Canonical, test.ShouldResemble, CanonicalConfig{Size: 1024, Margin: 136})
	test.That(t, cfg.Rectify.Alpha, test.ShouldEqual, 1.0)
	test.That(t, cfg.Grid.LabelOrigin, test.ShouldEqual, LabelOriginTopLeft)

	cands, forced, err := cfg.Calibration.Geometries()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, forced, test.ShouldBeNil)
	test.That(t, cands, test.ShouldResemble, DefaultCandidates)
	test.That(t, cfg.Calibration.Validate(), test.ShouldBeNil)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardcal.yaml")
	raw := `
calibration:
  image_glob: "shots/*.png"
  force: 8x11
  square_size_m: 0.03
canonical:
  size: 800
  margin: 100
grid:
  label_origin: bottom-left
`
	test.That(t, os.WriteFile(path, []byte(raw), 0o600), test.ShouldBeNil)

	cfg, err := LoadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Calibration.ImageGlob, test.ShouldEqual, "shots/*.png")
	test.That(t, cfg.Calibration.SquareSizeM, test.ShouldEqual, 0.03)
	test.That(t, cfg.Calibration.Output, test.ShouldEqual, "intrinsics.json")
	test.That(t, cfg.Canonical, test.ShouldResemble, CanonicalConfig{Size: 800, Margin: 100})
	test.That(t, cfg.Grid.BoardN, test.ShouldEqual, 8)

	gc := cfg.GridConfig()
	test.That(t, gc.LabelOrigin, test.ShouldEqual, LabelOriginBottomLeft)
	test.That(t, gc.Canonical.Size, test.ShouldEqual, 800)

	_, forced, err := cfg.Calibration.Geometries()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *forced, test.ShouldResemble, BoardGeometry{Rows: 8, Cols: 11})
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.LabelOrigin = "sideways"
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg = DefaultConfig()
	cfg.Rectify.Alpha = -1
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cc := DefaultConfig().Calibration
	cc.SquareSizeM = 0
	test.That(t, cc.Validate(), test.ShouldNotBeNil)

	cc = DefaultConfig().Calibration
	cc.Candidates = []string{"7by7"}
	test.That(t, cc.Validate(), test.ShouldNotBeNil)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
}
