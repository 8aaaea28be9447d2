package boardcal

import (
	"image"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
)

// CalibrationImage is one decoded calibration photo.
type CalibrationImage struct {
	Path  string
	Image image.Image
}

// ImageBatch is the result of loading a glob of calibration images.
type ImageBatch struct {
	Images  []CalibrationImage
	Size    image.Point
	Matched int
	// Skipped holds one error per file that could not be used.
	Skipped error
}

// LoadCalibrationImages reads every file matching pattern in sorted order. Unreadable files
// and files whose size differs from the first readable one are skipped and reported in
// Skipped; having nothing usable is ErrInputNotFound.
func LoadCalibrationImages(pattern string, logger logging.Logger) (*ImageBatch, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "bad image glob %q", pattern)
	}
	sort.Strings(paths)
	logger.Infof("found %d images for calibration", len(paths))
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrInputNotFound, "no images found for glob %q", pattern)
	}

	batch := &ImageBatch{Matched: len(paths)}
	for _, p := range paths {
		img, err := rimage.ReadImageFromFile(p)
		if err != nil {
			logger.Warnf("skipping %s: %v", p, err)
			batch.Skipped = multierr.Append(batch.Skipped, errors.Wrapf(ErrInputNotFound, "cannot read %s: %v", p, err))
			continue
		}
		size := img.Bounds().Size()
		if len(batch.Images) == 0 {
			batch.Size = size
		} else if size != batch.Size {
			logger.Warnf("skipping %s: size %v differs from %v", p, size, batch.Size)
			batch.Skipped = multierr.Append(batch.Skipped,
				errors.Wrapf(ErrDimensionMismatch, "%s is %dx%d, expected %dx%d", p, size.X, size.Y, batch.Size.X, batch.Size.Y))
			continue
		}
		batch.Images = append(batch.Images, CalibrationImage{Path: p, Image: img})
	}

	if len(batch.Images) == 0 {
		return nil, errors.Wrapf(ErrInputNotFound, "none of the %d images for %q could be read: %v", len(paths), pattern, batch.Skipped)
	}
	return batch, nil
}
