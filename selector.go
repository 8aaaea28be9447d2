package boardcal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
)

// SelectOptions controls SelectGeometry.
type SelectOptions struct {
	// Forced, when set, is the only geometry tried.
	Forced *BoardGeometry
	// DebugDir receives an annotated image for every successful detection. Empty disables it.
	DebugDir string
}

// Selection is the outcome of a geometry trial over a batch of images.
type Selection struct {
	Geometry   BoardGeometry
	Candidates []BoardGeometry
	// Counts is parallel to Candidates.
	Counts []int
	Total  int
	// Samples are the images whose first successful geometry was Geometry.
	Samples []CalibrationSample
}

// Count returns the number of successes for g.
func (s *Selection) Count(g BoardGeometry) int {
	for i, c := range s.Candidates {
		if c == g {
			return s.Counts[i]
		}
	}
	return 0
}

// SelectGeometry tries candidates on every image in priority order, stopping at the first
// success per image, and picks the geometry with the most successes. Ties go to the
// earlier candidate.
func SelectGeometry(
	ctx context.Context,
	images []CalibrationImage,
	candidates []BoardGeometry,
	det CornerDetector,
	opts SelectOptions,
	logger logging.Logger,
) (*Selection, error) {
	if opts.Forced != nil {
		candidates = []BoardGeometry{*opts.Forced}
		logger.Infof("forcing geometry: %v", *opts.Forced)
	} else {
		logger.Infof("trying geometries: %v", candidates)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no candidate geometries")
	}

	sel := &Selection{
		Candidates: candidates,
		Counts:     make([]int, len(candidates)),
		Total:      len(images),
	}
	samples := make([][]CalibrationSample, len(candidates))

	for _, ci := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prepared, err := det.Preprocess(ci.Image)
		if err != nil {
			logger.Warnf("cannot preprocess %s: %v", ci.Path, err)
			continue
		}
		for i, g := range candidates {
			corners, found := det.FindCorners(prepared, g)
			if !found {
				continue
			}
			sel.Counts[i]++
			samples[i] = append(samples[i], CalibrationSample{Path: ci.Path, Corners: corners})
			if opts.DebugDir != "" {
				if err := writeDetectionDebugImage(opts.DebugDir, ci, g, corners); err != nil {
					logger.Warnf("cannot write debug image for %s: %v", ci.Path, err)
				}
			}
			break
		}
		if err := prepared.Close(); err != nil {
			logger.Debugf("closing prepared image %s: %v", ci.Path, err)
		}
	}

	logger.Info("success counts per geometry:")
	for i, g := range candidates {
		logger.Infof("  %v: %d/%d", g, sel.Counts[i], sel.Total)
	}

	best := 0
	for i := range candidates {
		if sel.Counts[i] > sel.Counts[best] {
			best = i
		}
	}

	if sel.Counts[best] == 0 {
		where := debugLocation(opts.DebugDir)
		if opts.Forced != nil {
			return nil, errors.Wrapf(ErrForcedGeometryFailed,
				"forced geometry %v detected in 0 of %d images; %s", *opts.Forced, sel.Total, where)
		}
		return nil, errors.Wrapf(ErrDetectionExhausted,
			"tried %v on %d images; check inner-corner counts vs squares, print contrast, blur and reflections; %s",
			candidates, sel.Total, where)
	}

	sel.Geometry = candidates[best]
	sel.Samples = samples[best]
	logger.Infof("chosen geometry: %v", sel.Geometry)
	return sel, nil
}

// HarvestSamples re-tries the chosen geometry on the images that counted for another
// candidate, so every image showing the chosen board contributes a sample. The result is
// in image order.
func HarvestSamples(
	ctx context.Context,
	images []CalibrationImage,
	sel *Selection,
	det CornerDetector,
	logger logging.Logger,
) ([]CalibrationSample, error) {
	have := map[string]CalibrationSample{}
	for _, s := range sel.Samples {
		have[s.Path] = s
	}

	out := make([]CalibrationSample, 0, len(images))
	for _, ci := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s, ok := have[ci.Path]; ok {
			out = append(out, s)
			continue
		}
		prepared, err := det.Preprocess(ci.Image)
		if err != nil {
			logger.Warnf("cannot preprocess %s: %v", ci.Path, err)
			continue
		}
		corners, found := det.FindCorners(prepared, sel.Geometry)
		if err := prepared.Close(); err != nil {
			logger.Debugf("closing prepared image %s: %v", ci.Path, err)
		}
		if found {
			logger.Debugf("harvested %v from %s", sel.Geometry, ci.Path)
			out = append(out, CalibrationSample{Path: ci.Path, Corners: corners})
		}
	}
	return out, nil
}

func debugLocation(dir string) string {
	if dir == "" {
		return "no diagnostic images were written"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return fmt.Sprintf("diagnostic images written to %s", abs)
}

func writeDetectionDebugImage(dir string, ci CalibrationImage, g BoardGeometry, corners CornerSet) error {
	stem := strings.TrimSuffix(filepath.Base(ci.Path), filepath.Ext(ci.Path))
	out := filepath.Join(dir, fmt.Sprintf("%s_found_%dx%d.jpg", stem, g.Rows, g.Cols))
	return rimage.WriteImageToFile(out, DrawCorners(ci.Image, g, corners))
}
