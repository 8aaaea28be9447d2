package boardcal

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/logging"
)

// ClickSet is the four outer board corners in the order top-left, top-right,
// bottom-right, bottom-left.
type ClickSet [4]r2.Point

// NewClickSet accepts exactly four points.
func NewClickSet(pts []r2.Point) (ClickSet, error) {
	var cs ClickSet
	if len(pts) != 4 {
		return cs, errors.Wrapf(ErrInvalidClickCount, "got %d", len(pts))
	}
	copy(cs[:], pts)
	return cs, nil
}

// Points returns the clicks as a slice.
func (cs ClickSet) Points() []r2.Point {
	return append([]r2.Point(nil), cs[:]...)
}

// CanonicalConfig describes the rectified board image: Size x Size pixels with the
// physical board inside [Margin, Size-Margin] on both axes.
type CanonicalConfig struct {
	Size   int `yaml:"size" json:"size"`
	Margin int `yaml:"margin" json:"margin"`
}

// DefaultCanonicalConfig is a 1024 pixel image with a 136 pixel margin.
func DefaultCanonicalConfig() CanonicalConfig {
	return CanonicalConfig{Size: 1024, Margin: 136}
}

// Validate requires a positive board span.
func (c CanonicalConfig) Validate() error {
	if c.Size <= 0 {
		return errors.Errorf("canonical size must be positive, got %d", c.Size)
	}
	if c.Margin < 0 || 2*c.Margin >= c.Size {
		return errors.Errorf("canonical margin %d leaves no board in a %d image", c.Margin, c.Size)
	}
	return nil
}

// DestinationCorners are where the clicked corners land in the canonical image.
func (c CanonicalConfig) DestinationCorners() ClickSet {
	m, s := float64(c.Margin), float64(c.Size-c.Margin)
	return ClickSet{{X: m, Y: m}, {X: s, Y: m}, {X: s, Y: s}, {X: m, Y: s}}
}

// RectifyOptions tunes Rectifier.
type RectifyOptions struct {
	// Alpha is the free scaling used for the undistorted camera matrix: 0 crops to valid
	// pixels only, 1 keeps every source pixel.
	Alpha float64 `yaml:"alpha" json:"alpha"`
}

// DefaultRectifyOptions keeps every source pixel.
func DefaultRectifyOptions() RectifyOptions {
	return RectifyOptions{Alpha: 1}
}

// Rectifier maps a photo of the board to the canonical fronto-parallel image.
type Rectifier struct {
	canonical CanonicalConfig
	opts      RectifyOptions
	logger    logging.Logger
}

// NewRectifier validates the configuration.
func NewRectifier(canonical CanonicalConfig, opts RectifyOptions, logger logging.Logger) (*Rectifier, error) {
	if err := canonical.Validate(); err != nil {
		return nil, err
	}
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, errors.Errorf("alpha must be in [0, 1], got %v", opts.Alpha)
	}
	return &Rectifier{canonical: canonical, opts: opts, logger: logger}, nil
}

// Canonical returns the output geometry.
func (r *Rectifier) Canonical() CanonicalConfig {
	return r.canonical
}

// Rectify undistorts img when intrinsics are given, then warps the clicked quadrilateral
// onto the canonical board square. The clicks are in the coordinates of the image that is
// warped, so with intrinsics they refer to the undistorted image.
func (r *Rectifier) Rectify(img image.Image, ci *CameraIntrinsics, clicks ClickSet) (*image.NRGBA, error) {
	if err := checkQuad(clicks); err != nil {
		return nil, err
	}
	src, err := r.Undistort(img, ci)
	if err != nil {
		return nil, err
	}

	dst := r.canonical.DestinationCorners()
	h, err := EstimateHomography(clicks.Points(), dst.Points())
	if err != nil {
		return nil, errors.Wrap(ErrDegenerateClicks, err.Error())
	}
	var inv mat.Dense
	if err := inv.Inverse(h); err != nil {
		return nil, errors.Wrap(ErrDegenerateClicks, err.Error())
	}
	return warpPerspective(toNRGBA(src), &inv, r.canonical.Size), nil
}

// Undistort removes lens distortion using the optimal new camera matrix for the configured
// alpha. With nil intrinsics img is returned as is.
func (r *Rectifier) Undistort(img image.Image, ci *CameraIntrinsics) (image.Image, error) {
	if ci == nil {
		return img, nil
	}
	newK := OptimalNewCameraMatrix(ci, r.opts.Alpha)
	und, err := UndistortImage(img, ci, newK)
	if err != nil {
		return nil, err
	}
	r.logger.Debugf("undistorted with fx=%.2f fy=%.2f cx=%.2f cy=%.2f", newK.Fx, newK.Fy, newK.Ppx, newK.Ppy)
	return und, nil
}

// PerspectiveTransform returns the homography from the clicked corners to the canonical
// destination corners.
func (r *Rectifier) PerspectiveTransform(clicks ClickSet) (*mat.Dense, error) {
	if err := checkQuad(clicks); err != nil {
		return nil, err
	}
	dst := r.canonical.DestinationCorners()
	return EstimateHomography(clicks.Points(), dst.Points())
}

// warpPerspective fills a size x size image by mapping each destination pixel through inv
// into src.
func warpPerspective(src *image.NRGBA, inv mat.Matrix, size int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := applyHomography(inv, r2.Point{X: float64(x), Y: float64(y)})
			c, _ := sampleBilinear(src, p.X, p.Y)
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// checkQuad rejects click sets that are not a strictly convex quadrilateral with a
// consistent winding.
func checkQuad(cs ClickSet) error {
	for _, p := range cs {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return errors.Wrap(ErrDegenerateClicks, "non-finite click")
		}
	}
	sign := 0.0
	for i := 0; i < 4; i++ {
		a, b, c := cs[i], cs[(i+1)%4], cs[(i+2)%4]
		cross := b.Sub(a).Cross(c.Sub(b))
		if math.Abs(cross) < 1e-9 {
			return errors.Wrapf(ErrDegenerateClicks, "corners %d, %d and %d are collinear", i+1, (i+1)%4+1, (i+2)%4+1)
		}
		if sign == 0 {
			sign = math.Copysign(1, cross)
		} else if math.Copysign(1, cross) != sign {
			return errors.Wrapf(ErrDegenerateClicks, "quadrilateral is not convex at corner %d", (i+1)%4+1)
		}
	}
	return nil
}
