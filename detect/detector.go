// Package detect finds checkerboard corners with OpenCV.
package detect

import (
	"image"
	"image/draw"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"boardcal"
)

// ChessboardDetector implements boardcal.CornerDetector. It tries the sector-based
// detector first and falls back to the classic one with sub-pixel refinement.
type ChessboardDetector struct {
	// DisableFallback skips the classic detector.
	DisableFallback bool
}

// NewChessboardDetector returns a detector with both paths enabled.
func NewChessboardDetector() *ChessboardDetector {
	return &ChessboardDetector{}
}

type grayImage struct {
	mat gocv.Mat
}

func (g *grayImage) Size() image.Point {
	return image.Pt(g.mat.Cols(), g.mat.Rows())
}

func (g *grayImage) Close() error {
	return g.mat.Close()
}

// Preprocess converts img to an equalized, lightly blurred grayscale Mat.
func (d *ChessboardDetector) Preprocess(img image.Image) (boardcal.PreparedImage, error) {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert image")
	}
	defer src.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
	gocv.EqualizeHist(blurred, &gray)

	return &grayImage{mat: gray}, nil
}

// FindCorners looks for g in p. The corners come back in boardcal.CanonicalOrder.
func (d *ChessboardDetector) FindCorners(p boardcal.PreparedImage, g boardcal.BoardGeometry) (boardcal.CornerSet, bool) {
	gi, ok := p.(*grayImage)
	if !ok {
		return nil, false
	}
	// OpenCV counts corners per row first.
	pattern := image.Pt(g.Cols, g.Rows)

	corners := gocv.NewMat()
	defer corners.Close()

	if gocv.FindChessboardCornersSB(gi.mat, pattern, &corners, gocv.CalibCBExhaustive|gocv.CalibCBAccuracy) {
		return finish(corners, g)
	}
	if d.DisableFallback {
		return nil, false
	}

	if !gocv.FindChessboardCorners(gi.mat, pattern, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage) {
		return nil, false
	}
	criteria := gocv.NewTermCriteria(gocv.EPS+gocv.MaxIter, 30, 1e-3)
	gocv.CornerSubPix(gi.mat, &corners, image.Pt(11, 11), image.Pt(-1, -1), criteria)
	return finish(corners, g)
}

func finish(corners gocv.Mat, g boardcal.BoardGeometry) (boardcal.CornerSet, bool) {
	if corners.Rows()*corners.Cols() != g.NumCorners() {
		return nil, false
	}
	cs := make(boardcal.CornerSet, 0, g.NumCorners())
	for i := 0; i < corners.Rows(); i++ {
		for j := 0; j < corners.Cols(); j++ {
			v := corners.GetVecfAt(i, j)
			cs = append(cs, r2.Point{X: float64(v[0]), Y: float64(v[1])})
		}
	}
	return boardcal.CanonicalOrder(cs, g), true
}

func toRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok && r.Bounds().Min == (image.Point{}) && r.Stride == 4*r.Bounds().Dx() {
		return r
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
