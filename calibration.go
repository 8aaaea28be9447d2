package boardcal

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils/trace"

	"go.viam.com/rdk/logging"
)

// CalibrationReport summarizes a Calibrate run.
type CalibrationReport struct {
	Intrinsics *CameraIntrinsics
	Selection  *Selection
	// Samples is how many views went into the fit.
	Samples int
	// Skipped is one combined error per image file that could not be used.
	Skipped       error
	LowConfidence bool
	OutputPath    string
}

// Calibrate finds the board geometry in a batch of photos, solves the camera intrinsics and
// writes the artifact to cfg.Output.
func Calibrate(ctx context.Context, cfg CalibrationConfig, det CornerDetector, logger logging.Logger) (*CalibrationReport, error) {
	ctx, span := trace.StartSpan(ctx, "boardcal::Calibrate")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	candidates, forced, err := cfg.Geometries()
	if err != nil {
		return nil, err
	}

	batch, err := LoadCalibrationImages(cfg.ImageGlob, logger)
	if err != nil {
		return nil, err
	}
	report := &CalibrationReport{Skipped: batch.Skipped, OutputPath: cfg.Output}
	if n := len(multierr.Errors(batch.Skipped)); n > 0 {
		logger.Warnf("skipped %d of %d images", n, batch.Matched)
	}

	if cfg.DebugDir != "" {
		if err := os.MkdirAll(cfg.DebugDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "cannot create debug dir %s", cfg.DebugDir)
		}
	}

	sel, err := selectAndHarvest(ctx, batch.Images, candidates, forced, det, cfg.DebugDir, logger)
	if err != nil {
		return nil, err
	}
	report.Selection = sel

	if len(sel.Samples) < MinCalibrationSamples {
		return nil, errors.Wrapf(ErrInsufficientSamples,
			"only found corners in %d images for geometry %v; need at least %d, ideally %d+",
			len(sel.Samples), sel.Geometry, MinCalibrationSamples, RecommendedCalibrationSamples)
	}
	if len(sel.Samples) < RecommendedCalibrationSamples {
		report.LowConfidence = true
		logger.Warnf("only %d images with %v corners; %d+ gives a more reliable calibration",
			len(sel.Samples), sel.Geometry, RecommendedCalibrationSamples)
	}
	report.Samples = len(sel.Samples)

	ci, err := solve(ctx, sel, cfg.SquareSizeM, batch, logger)
	if err != nil {
		return nil, err
	}
	report.Intrinsics = ci

	if err := SaveIntrinsics(cfg.Output, ci); err != nil {
		return nil, errors.Wrapf(err, "cannot save intrinsics to %s", cfg.Output)
	}
	logger.Infof("saved intrinsics to %s", cfg.Output)
	return report, nil
}

func selectAndHarvest(
	ctx context.Context,
	images []CalibrationImage,
	candidates []BoardGeometry,
	forced *BoardGeometry,
	det CornerDetector,
	debugDir string,
	logger logging.Logger,
) (*Selection, error) {
	ctx, span := trace.StartSpan(ctx, "boardcal::selectGeometry")
	defer span.End()

	sel, err := SelectGeometry(ctx, images, candidates, det, SelectOptions{Forced: forced, DebugDir: debugDir}, logger)
	if err != nil {
		return nil, err
	}
	samples, err := HarvestSamples(ctx, images, sel, det, logger)
	if err != nil {
		return nil, err
	}
	if extra := len(samples) - len(sel.Samples); extra > 0 {
		logger.Infof("harvested %d more views of %v", extra, sel.Geometry)
	}
	sel.Samples = samples
	return sel, nil
}

func solve(ctx context.Context, sel *Selection, squareSize float64, batch *ImageBatch, logger logging.Logger) (*CameraIntrinsics, error) {
	_, span := trace.StartSpan(ctx, "boardcal::SolveIntrinsics")
	defer span.End()

	logger.Infof("calibrating from %d views of %v at %dx%d", len(sel.Samples), sel.Geometry, batch.Size.X, batch.Size.Y)
	ci, err := SolveIntrinsics(sel.Samples, sel.Geometry, squareSize, batch.Size)
	if err != nil {
		return nil, err
	}
	p := ci.Pinhole
	logger.Infof("RMS reprojection error: %.4f px", ci.RMSError)
	logger.Infof("camera matrix: fx=%.3f fy=%.3f cx=%.3f cy=%.3f", p.Fx, p.Fy, p.Ppx, p.Ppy)
	logger.Infof("distortion [k1 k2 p1 p2 k3]: %v", ci.DistCoeffs())
	return ci, nil
}
