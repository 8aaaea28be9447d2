package boardcal

import (
	"context"
	"fmt"
	"image"

	"github.com/mitchellh/mapstructure"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
)

var RectifiedBoardModel = family.WithModel("rectified-board")

func init() {
	resource.RegisterComponent(camera.API, RectifiedBoardModel,
		resource.Registration[camera.Camera, *RectifiedBoardConfig]{
			Constructor: newRectifiedBoard,
		},
	)
}

type RectifiedBoardConfig struct {
	Input string
	// Corners are the board's outer corners in the input image: TL, TR, BR, BL. With
	// intrinsics they are in undistorted coordinates.
	Corners    [][]float64
	Intrinsics string `json:"intrinsics,omitempty"`

	Size        int      `json:"size,omitempty"`
	Margin      *int     `json:"margin,omitempty"`
	Alpha       *float64 `json:"alpha,omitempty"`
	Grid        bool     `json:"grid,omitempty"`
	LabelOrigin string   `json:"label-origin,omitempty"`
	Hue         bool     `json:"hue,omitempty"`
}

func (cfg *RectifiedBoardConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Input == "" {
		return nil, nil, fmt.Errorf("need an input")
	}
	if _, err := clicksFromConfig(cfg.Corners); err != nil {
		return nil, nil, err
	}
	if _, err := cfg.gridConfig(); err != nil {
		return nil, nil, err
	}
	return []string{cfg.Input}, nil, nil
}

func (cfg *RectifiedBoardConfig) gridConfig() (GridConfig, error) {
	gc := DefaultGridConfig()
	if cfg.Size > 0 {
		gc.Canonical.Size = cfg.Size
	}
	if cfg.Margin != nil {
		gc.Canonical.Margin = *cfg.Margin
	}
	if cfg.LabelOrigin != "" {
		o, err := ParseLabelOrigin(cfg.LabelOrigin)
		if err != nil {
			return gc, err
		}
		gc.LabelOrigin = o
	}
	return gc, gc.Validate()
}

func (cfg *RectifiedBoardConfig) rectifyOptions() RectifyOptions {
	opts := DefaultRectifyOptions()
	if cfg.Alpha != nil {
		opts.Alpha = *cfg.Alpha
	}
	return opts
}

func newRectifiedBoard(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*RectifiedBoardConfig](rawConf)
	if err != nil {
		return nil, err
	}

	return NewRectifiedBoard(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewRectifiedBoard(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *RectifiedBoardConfig, logger logging.Logger) (camera.Camera, error) {
	input, err := camera.FromProvider(deps, conf.Input)
	if err != nil {
		return nil, err
	}
	return newRectifiedBoardFromInput(name, conf, input, logger)
}

func newRectifiedBoardFromInput(name resource.Name, conf *RectifiedBoardConfig, input camera.Camera, logger logging.Logger) (*RectifiedBoard, error) {
	var err error

	rb := &RectifiedBoard{
		name:   name,
		conf:   conf,
		logger: logger,
		input:  input,
	}

	rb.clicks, err = clicksFromConfig(conf.Corners)
	if err != nil {
		return nil, err
	}

	gc, err := conf.gridConfig()
	if err != nil {
		return nil, err
	}
	rb.rectifier, err = NewRectifier(gc.Canonical, conf.rectifyOptions(), logger)
	if err != nil {
		return nil, err
	}
	rb.grid, err = NewGridDecomposer(gc, logger)
	if err != nil {
		return nil, err
	}

	if conf.Intrinsics != "" {
		rb.intrinsics, err = LoadIntrinsics(conf.Intrinsics)
		if err != nil {
			return nil, err
		}
	}

	return rb, nil
}

// RectifiedBoard is a camera that serves the canonical top-down view of the board seen by
// its input camera.
type RectifiedBoard struct {
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	name   resource.Name
	conf   *RectifiedBoardConfig
	logger logging.Logger

	input      camera.Camera
	clicks     ClickSet
	intrinsics *CameraIntrinsics
	rectifier  *Rectifier
	grid       *GridDecomposer
}

func (rb *RectifiedBoard) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	return camera.GetImageFromGetImages(ctx, nil, rb, extra, nil)
}

func (rb *RectifiedBoard) Images(ctx context.Context, filterSourceNames []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	warped, rm, err := rb.rectifiedFrame(ctx, extra)
	if err != nil {
		return nil, rm, err
	}

	var out image.Image = warped
	if rb.conf.Hue {
		out = HueImage(out)
	}
	if rb.conf.Grid {
		cells, err := rb.grid.Cells(out.Bounds())
		if err != nil {
			return nil, rm, err
		}
		out = rb.grid.Overlay(out, cells)
	}

	result, err := camera.NamedImageFromImage(out, rb.name.ShortName(), "", data.Annotations{})
	if err != nil {
		return nil, rm, err
	}
	return []camera.NamedImage{result}, rm, nil
}

func (rb *RectifiedBoard) rectifiedFrame(ctx context.Context, extra map[string]interface{}) (image.Image, resource.ResponseMetadata, error) {
	src, rm, err := firstImage(ctx, rb.input, extra)
	if err != nil {
		return nil, rm, err
	}
	warped, err := rb.rectifier.Rectify(src, rb.intrinsics, rb.clicks)
	if err != nil {
		return nil, rm, err
	}
	return warped, rm, nil
}

type sliceCmd struct {
	Dir string
}

type boardCmdStruct struct {
	Slice *sliceCmd
}

func (rb *RectifiedBoard) DoCommand(ctx context.Context, cmdMap map[string]interface{}) (map[string]interface{}, error) {
	var cmd boardCmdStruct
	err := mapstructure.Decode(cmdMap, &cmd)
	if err != nil {
		return nil, err
	}

	if cmd.Slice != nil {
		if cmd.Slice.Dir == "" {
			return nil, fmt.Errorf("slice needs a dir")
		}
		warped, _, err := rb.rectifiedFrame(ctx, nil)
		if err != nil {
			return nil, err
		}
		d, err := rb.grid.Decompose(warped)
		if err != nil {
			return nil, err
		}
		if err := WriteSquares(cmd.Slice.Dir, d.Crops); err != nil {
			return nil, err
		}
		rb.logger.Infof("wrote %d squares to %s", len(d.Crops), cmd.Slice.Dir)
		return map[string]interface{}{"dir": cmd.Slice.Dir, "squares": len(d.Crops)}, nil
	}

	return nil, fmt.Errorf("bad cmd %v", cmdMap)
}

func (rb *RectifiedBoard) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	return nil, fmt.Errorf("NextPointCloud not supported")
}

func (rb *RectifiedBoard) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{}, nil
}

func (rb *RectifiedBoard) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

func (rb *RectifiedBoard) Name() resource.Name {
	return rb.name
}
