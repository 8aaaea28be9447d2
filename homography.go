package boardcal

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EstimateHomography returns the 3x3 projective transform H with dst ~ H*src, normalized so
// that H[2][2] == 1. With exactly 4 correspondences the fit is exact; with more it is the
// algebraic least-squares fit. Both point sets are Hartley-normalized before the DLT.
func EstimateHomography(src, dst []r2.Point) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 points for a homography, got %d", len(src))
	}

	ts, ns := hartleyNormalize(src)
	td, nd := hartleyNormalize(dst)

	rows := 2 * len(src)
	if rows < 9 {
		rows = 9
	}
	a := mat.NewDense(rows, 9, nil)
	for i := range ns {
		sx, sy := ns[i].X, ns[i].Y
		dx, dy := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-sx, -sy, -1, 0, 0, 0, dx * sx, dx * sy, dx})
		a.SetRow(2*i+1, []float64{0, 0, 0, -sx, -sy, -1, dy * sx, dy * sy, dy})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("homography SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := make([]float64, 9)
	for i := range h {
		h[i] = v.At(i, 8)
	}
	hn := mat.NewDense(3, 3, h)

	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return nil, errors.Wrap(err, "degenerate destination points")
	}
	var out mat.Dense
	out.Product(&tdInv, hn, ts)

	scale := out.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return nil, errors.New("degenerate homography")
	}
	out.Scale(1/scale, &out)
	return &out, nil
}

// hartleyNormalize moves the centroid to the origin and scales the mean distance to sqrt(2).
func hartleyNormalize(pts []r2.Point) (*mat.Dense, []r2.Point) {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))

	mean := 0.0
	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}
	mean /= float64(len(pts))

	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}

	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(c).Mul(s)
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
	return t, out
}

// applyHomography maps p through h.
func applyHomography(h mat.Matrix, p r2.Point) r2.Point {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}
