package boardcal

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/mitchellh/mapstructure"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	generic "go.viam.com/rdk/services/generic"
)

var CornerPickerModel = family.WithModel("corner-picker")

func init() {
	resource.RegisterService(generic.API, CornerPickerModel,
		resource.Registration[resource.Resource, *CornerPickerConfig]{
			Constructor: newCornerPicker,
		},
	)
}

type CornerPickerConfig struct {
	Camera     string
	Intrinsics string `json:"intrinsics,omitempty"`

	Size        int      `json:"size,omitempty"`
	Margin      *int     `json:"margin,omitempty"`
	Alpha       *float64 `json:"alpha,omitempty"`
	LabelOrigin string   `json:"label-origin,omitempty"`
}

func (cfg *CornerPickerConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Camera == "" {
		return nil, nil, fmt.Errorf("need a camera")
	}
	if _, err := cfg.boardConfig().gridConfig(); err != nil {
		return nil, nil, err
	}
	return []string{cfg.Camera}, nil, nil
}

func (cfg *CornerPickerConfig) boardConfig() *RectifiedBoardConfig {
	return &RectifiedBoardConfig{
		Size:        cfg.Size,
		Margin:      cfg.Margin,
		Alpha:       cfg.Alpha,
		LabelOrigin: cfg.LabelOrigin,
	}
}

type cornerPicker struct {
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	name   resource.Name
	logger logging.Logger
	conf   *CornerPickerConfig

	frame      func(ctx context.Context) (image.Image, error)
	intrinsics *CameraIntrinsics
	rectifier  *Rectifier
	grid       *GridDecomposer

	mu      sync.Mutex
	session *ClickSession
	last    ClickSet
}

func newCornerPicker(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*CornerPickerConfig](rawConf)
	if err != nil {
		return nil, err
	}

	return NewCornerPicker(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewCornerPicker(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *CornerPickerConfig, logger logging.Logger) (resource.Resource, error) {
	cam, err := camera.FromProvider(deps, conf.Camera)
	if err != nil {
		return nil, err
	}
	frame := func(ctx context.Context) (image.Image, error) {
		img, _, err := firstImage(ctx, cam, nil)
		return img, err
	}
	return newCornerPickerWithFrames(name, conf, frame, logger)
}

func newCornerPickerWithFrames(
	name resource.Name,
	conf *CornerPickerConfig,
	frame func(ctx context.Context) (image.Image, error),
	logger logging.Logger,
) (*cornerPicker, error) {
	gc, err := conf.boardConfig().gridConfig()
	if err != nil {
		return nil, err
	}

	s := &cornerPicker{
		name:   name,
		logger: logger,
		conf:   conf,
		frame:  frame,
	}
	s.rectifier, err = NewRectifier(gc.Canonical, conf.boardConfig().rectifyOptions(), logger)
	if err != nil {
		return nil, err
	}
	s.grid, err = NewGridDecomposer(gc, logger)
	if err != nil {
		return nil, err
	}
	if conf.Intrinsics != "" {
		s.intrinsics, err = LoadIntrinsics(conf.Intrinsics)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *cornerPicker) Name() resource.Name {
	return s.name
}

type clickCmd struct {
	X, Y float64
}

type confirmCmd struct {
	Warped  string
	Squares string
}

type pickerCmdStruct struct {
	Start   bool
	Click   *clickCmd
	Reset   bool
	Confirm *confirmCmd
	Abort   bool
	Status  bool
	Canvas  string
}

func (s *cornerPicker) DoCommand(ctx context.Context, cmdMap map[string]interface{}) (map[string]interface{}, error) {
	var cmd pickerCmdStruct
	err := mapstructure.Decode(cmdMap, &cmd)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case cmd.Start:
		img, err := s.frame(ctx)
		if err != nil {
			return nil, err
		}
		img, err = s.rectifier.Undistort(img, s.intrinsics)
		if err != nil {
			return nil, err
		}
		s.session = NewClickSession(img)
		b := img.Bounds()
		s.logger.Infof("click session started on a %dx%d frame", b.Dx(), b.Dy())
		return s.status(), nil

	case cmd.Click != nil:
		if s.session == nil {
			return nil, fmt.Errorf("no click session, send start first")
		}
		s.session.AddPoint(r2.Point{X: cmd.Click.X, Y: cmd.Click.Y})
		return s.status(), nil

	case cmd.Reset:
		if s.session != nil {
			s.session.Reset()
		}
		return s.status(), nil

	case cmd.Abort:
		if s.session != nil {
			s.session.Abort()
		}
		return s.status(), nil

	case cmd.Confirm != nil:
		if s.session == nil {
			return nil, fmt.Errorf("no click session, send start first")
		}
		return s.confirm(cmd.Confirm)

	case cmd.Canvas != "":
		if s.session == nil {
			return nil, fmt.Errorf("no click session, send start first")
		}
		if err := rimage.WriteImageToFile(cmd.Canvas, s.session.Canvas()); err != nil {
			return nil, err
		}
		return s.status(), nil

	case cmd.Status:
		return s.status(), nil
	}

	return nil, fmt.Errorf("bad cmd %v", cmdMap)
}

func (s *cornerPicker) confirm(cmd *confirmCmd) (map[string]interface{}, error) {
	pending, err := NewClickSet(s.session.Clicks())
	if err != nil {
		// Not four clicks, or aborted: Confirm reports which and leaves the session alone.
		_, err = s.session.Confirm()
		return nil, err
	}

	// The session image is already undistorted. A rejected quad keeps the clicks so the
	// operator can reset or keep going.
	warped, err := s.rectifier.Rectify(s.session.Image(), nil, pending)
	if err != nil {
		return nil, err
	}
	clicks, err := s.session.Confirm()
	if err != nil {
		return nil, err
	}
	s.last = clicks

	res := s.status()
	if cmd.Warped != "" {
		if err := rimage.WriteImageToFile(cmd.Warped, warped); err != nil {
			return nil, err
		}
		res["warped"] = cmd.Warped
	}
	if cmd.Squares != "" {
		d, err := s.grid.Decompose(warped)
		if err != nil {
			return nil, err
		}
		if err := WriteSquares(cmd.Squares, d.Crops); err != nil {
			return nil, err
		}
		names := make([]interface{}, 0, len(d.Crops))
		for _, c := range d.Crops {
			names = append(names, c.Cell.Name)
		}
		res["squares"] = names
	}
	return res, nil
}

func (s *cornerPicker) status() map[string]interface{} {
	res := map[string]interface{}{"state": string(SessionIdle), "clicks": []interface{}{}}
	if s.session != nil {
		res["state"] = string(s.session.State())
		clicks := []interface{}{}
		for _, p := range s.session.Clicks() {
			clicks = append(clicks, []interface{}{p.X, p.Y})
		}
		res["clicks"] = clicks
	}
	if s.last != (ClickSet{}) {
		corners := []interface{}{}
		for _, p := range s.last {
			corners = append(corners, []interface{}{p.X, p.Y})
		}
		res["corners"] = corners
	}
	return res
}
