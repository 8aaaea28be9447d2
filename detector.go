package boardcal

import (
	"image"
)

// PreparedImage is an image already converted into a detector's working form.
type PreparedImage interface {
	Size() image.Point
	Close() error
}

// CornerDetector locates checkerboard corners.
//
// Preprocess is called once per image and its result is shared by every geometry tried on
// that image. FindCorners reports false on a normal failure to detect; the returned corner
// set is in CanonicalOrder.
type CornerDetector interface {
	Preprocess(img image.Image) (PreparedImage, error)
	FindCorners(p PreparedImage, g BoardGeometry) (CornerSet, bool)
}
