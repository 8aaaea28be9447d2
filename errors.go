package boardcal

import "github.com/pkg/errors"

var (
	// ErrInputNotFound is returned when no calibration image matched or an image could not be read.
	ErrInputNotFound = errors.New("input not found")
	// ErrDetectionExhausted is returned when no candidate geometry was detected in any image.
	ErrDetectionExhausted = errors.New("no corners detected for any candidate geometry")
	// ErrForcedGeometryFailed is returned when the operator-forced geometry was never detected.
	ErrForcedGeometryFailed = errors.New("forced geometry was not detected")
	// ErrInsufficientSamples is returned when too few images survived for the chosen geometry.
	ErrInsufficientSamples = errors.New("not enough calibration samples")
	// ErrInvalidClickCount is returned when a click set does not hold exactly 4 points.
	ErrInvalidClickCount = errors.New("need exactly 4 clicks: TL, TR, BR, BL")
	// ErrDegenerateClicks is returned when the 4 clicks do not form a convex quadrilateral.
	ErrDegenerateClicks = errors.New("clicked corners do not form a convex quadrilateral")
	// ErrDimensionMismatch reports an image whose size differs from the expected one.
	ErrDimensionMismatch = errors.New("image dimensions do not match")
	// ErrSessionAborted is returned by a click session that was aborted.
	ErrSessionAborted = errors.New("click session aborted")
)
