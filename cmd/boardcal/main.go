package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"boardcal"
	"boardcal/detect"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
)

func main() {
	var logger logging.Logger

	app := &cli.App{
		Name:  "boardcal",
		Usage: "calibrate a camera and slice chessboard photos into labeled squares",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load settings from YAML `FILE`",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = logging.NewDebugLogger("boardcal")
			} else {
				logger = logging.NewLogger("boardcal")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "calibrate",
				Usage: "solve camera intrinsics from checkerboard photos",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "images", Usage: "glob of calibration photos"},
					&cli.StringSliceFlag{Name: "candidates", Usage: "inner-corner geometries to try, in order, as RxC"},
					&cli.StringFlag{Name: "force", Usage: "only try this RxC geometry"},
					&cli.Float64Flag{Name: "square-size", Usage: "printed square edge in meters"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "intrinsics JSON to write"},
					&cli.StringFlag{Name: "debug-dir", Usage: "where annotated detections are written"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					cc := cfg.Calibration
					if c.IsSet("images") {
						cc.ImageGlob = c.String("images")
					}
					if c.IsSet("candidates") {
						cc.Candidates = c.StringSlice("candidates")
					}
					if c.IsSet("force") {
						cc.Force = c.String("force")
					}
					if c.IsSet("square-size") {
						cc.SquareSizeM = c.Float64("square-size")
					}
					if c.IsSet("output") {
						cc.Output = c.String("output")
					}
					if c.IsSet("debug-dir") {
						cc.DebugDir = c.String("debug-dir")
					}

					report, err := boardcal.Calibrate(c.Context, cc, detect.NewChessboardDetector(), logger)
					if err != nil {
						return err
					}
					ci := report.Intrinsics
					fmt.Fprintf(c.App.Writer, "geometry %v from %d views, RMS %.4f px, written to %s\n",
						ci.Geometry, report.Samples, ci.RMSError, report.OutputPath)
					if report.LowConfidence {
						fmt.Fprintf(c.App.Writer, "warning: fewer than %d views, consider more photos\n",
							boardcal.RecommendedCalibrationSamples)
					}
					return nil
				},
			},
			{
				Name:  "rectify",
				Usage: "warp a board photo to the canonical top-down image",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Required: true, Usage: "board photo"},
					&cli.StringSliceFlag{Name: "corner", Required: true, Usage: "outer board corner as x,y; give TL, TR, BR, BL in order"},
					&cli.StringFlag{Name: "intrinsics", Usage: "intrinsics JSON; corners are then in the coordinates of the undistort command's output"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "warped.jpg", Usage: "canonical image to write"},
					&cli.StringFlag{Name: "marked", Usage: "also write the source image with the corners drawn"},
					&cli.StringFlag{Name: "squares", Usage: "also slice the canonical image into this directory"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					rect, err := boardcal.NewRectifier(cfg.Canonical, cfg.Rectify, logger)
					if err != nil {
						return err
					}
					var ci *boardcal.CameraIntrinsics
					if p := c.String("intrinsics"); p != "" {
						if ci, err = boardcal.LoadIntrinsics(p); err != nil {
							return err
						}
					}
					img, err := rimage.ReadImageFromFile(c.String("image"))
					if err != nil {
						return errors.Wrapf(boardcal.ErrInputNotFound, "cannot read %s: %v", c.String("image"), err)
					}
					src, err := rect.Undistort(img, ci)
					if err != nil {
						return err
					}

					corners, err := parseCorners(c.StringSlice("corner"))
					if err != nil {
						return err
					}
					session := boardcal.NewClickSession(src)
					for _, p := range corners {
						session.AddPoint(p)
					}
					if m := c.String("marked"); m != "" {
						if err := rimage.WriteImageToFile(m, session.Canvas()); err != nil {
							return err
						}
					}
					clicks, err := session.Confirm()
					if err != nil {
						return err
					}

					warped, err := rect.Rectify(src, nil, clicks)
					if err != nil {
						return err
					}
					if err := rimage.WriteImageToFile(c.String("output"), warped); err != nil {
						return err
					}
					logger.Infof("wrote %s", c.String("output"))

					if dir := c.String("squares"); dir != "" {
						return slice(cfg, warped, dir, "", logger)
					}
					return nil
				},
			},
			{
				Name:  "undistort",
				Usage: "write the undistorted frame that rectify --intrinsics expects corners on",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Required: true, Usage: "board photo"},
					&cli.StringFlag{Name: "intrinsics", Required: true, Usage: "intrinsics JSON"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "undistorted.png", Usage: "undistorted image to write"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return undistortFile(cfg, c.String("image"), c.String("intrinsics"), c.String("output"), logger)
				},
			},
			{
				Name:  "slice",
				Usage: "cut a canonical board image into one image per square",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Required: true, Usage: "canonical board image"},
					&cli.StringFlag{Name: "out", Value: "squares", Usage: "directory for <square>.png files"},
					&cli.StringFlag{Name: "overlay", Usage: "also write the image with the grid drawn"},
					&cli.StringFlag{Name: "label-origin", Usage: "image corner holding a1: bottom-left, top-left, top-right or bottom-right"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if c.IsSet("label-origin") {
						o, err := boardcal.ParseLabelOrigin(c.String("label-origin"))
						if err != nil {
							return err
						}
						cfg.Grid.LabelOrigin = o
					}
					img, err := rimage.ReadImageFromFile(c.String("image"))
					if err != nil {
						return errors.Wrapf(boardcal.ErrInputNotFound, "cannot read %s: %v", c.String("image"), err)
					}
					return slice(cfg, img, c.String("out"), c.String("overlay"), logger)
				},
			},
			{
				Name:  "target",
				Usage: "write a printable calibration checkerboard PDF",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "geometry", Value: "7x7", Usage: "inner corners as RxC"},
					&cli.Float64Flag{Name: "square-size", Value: 0.024, Usage: "square edge in meters"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "target.pdf"},
				},
				Action: func(c *cli.Context) error {
					g, err := boardcal.ParseBoardGeometry(c.String("geometry"))
					if err != nil {
						return err
					}
					if err := boardcal.WriteTargetPDF(c.String("output"), g, c.Float64("square-size")); err != nil {
						return err
					}
					logger.Infof("wrote %s", c.String("output"))
					return nil
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*boardcal.Config, error) {
	cfg, err := boardcal.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// undistortFile writes the frame clicks are taken on when intrinsics are used.
func undistortFile(cfg *boardcal.Config, imagePath, intrinsicsPath, out string, logger logging.Logger) error {
	rect, err := boardcal.NewRectifier(cfg.Canonical, cfg.Rectify, logger)
	if err != nil {
		return err
	}
	ci, err := boardcal.LoadIntrinsics(intrinsicsPath)
	if err != nil {
		return err
	}
	img, err := rimage.ReadImageFromFile(imagePath)
	if err != nil {
		return errors.Wrapf(boardcal.ErrInputNotFound, "cannot read %s: %v", imagePath, err)
	}
	und, err := rect.Undistort(img, ci)
	if err != nil {
		return err
	}
	if err := rimage.WriteImageToFile(out, und); err != nil {
		return err
	}
	logger.Infof("wrote %s", out)
	return nil
}

func slice(cfg *boardcal.Config, img image.Image, dir, overlay string, logger logging.Logger) error {
	gd, err := boardcal.NewGridDecomposer(cfg.GridConfig(), logger)
	if err != nil {
		return err
	}
	d, err := gd.Decompose(img)
	if err != nil {
		return err
	}
	if err := boardcal.WriteSquares(dir, d.Crops); err != nil {
		return err
	}
	logger.Infof("wrote %d squares to %s", len(d.Crops), dir)
	if overlay != "" {
		if err := rimage.WriteImageToFile(overlay, d.Overlay); err != nil {
			return err
		}
		logger.Infof("wrote %s", overlay)
	}
	return nil
}

// parseCorners reads x,y pairs. The slice flag splits on commas, so the values may arrive
// as single coordinates.
func parseCorners(vals []string) ([]r2.Point, error) {
	var nums []float64
	for _, v := range vals {
		for _, f := range strings.Split(v, ",") {
			x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad corner coordinate %q", f)
			}
			nums = append(nums, x)
		}
	}
	if len(nums)%2 != 0 {
		return nil, errors.Errorf("corners need x,y pairs, got %d numbers", len(nums))
	}
	pts := make([]r2.Point, 0, len(nums)/2)
	for i := 0; i < len(nums); i += 2 {
		pts = append(pts, r2.Point{X: nums[i], Y: nums[i+1]})
	}
	return pts, nil
}
