package boardcal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// BoardGeometry is the number of inner corners of a checkerboard, rows x cols.
type BoardGeometry struct {
	Rows int
	Cols int
}

// DefaultCandidates is the priority order tried when no geometry is forced.
// 7x7 inner corners is a plain 8x8 board.
var DefaultCandidates = []BoardGeometry{
	{7, 7},
	{8, 8},
	{6, 9},
	{7, 10},
	{8, 11},
}

// ParseBoardGeometry parses "RxC" (rows x cols of inner corners).
func ParseBoardGeometry(s string) (BoardGeometry, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return BoardGeometry{}, errors.Errorf("bad board geometry %q, want RxC", s)
	}
	rows, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return BoardGeometry{}, errors.Wrapf(err, "bad rows in %q", s)
	}
	cols, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return BoardGeometry{}, errors.Wrapf(err, "bad cols in %q", s)
	}
	g := BoardGeometry{rows, cols}
	return g, g.Validate()
}

// ParseBoardGeometries parses a list of "RxC" strings, keeping order.
func ParseBoardGeometries(in []string) ([]BoardGeometry, error) {
	out := make([]BoardGeometry, 0, len(in))
	for _, s := range in {
		g, err := ParseBoardGeometry(s)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Validate checks both counts are positive.
func (g BoardGeometry) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return errors.Errorf("board geometry needs positive rows and cols, got %dx%d", g.Rows, g.Cols)
	}
	return nil
}

func (g BoardGeometry) String() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}

// NumCorners is Rows*Cols.
func (g BoardGeometry) NumCorners() int {
	return g.Rows * g.Cols
}

// ObjectPoints is the planar corner grid scaled by the physical square size, in the same
// row-major order as a CornerSet.
func ObjectPoints(g BoardGeometry, squareSize float64) []r3.Vector {
	pts := make([]r3.Vector, 0, g.NumCorners())
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			pts = append(pts, r3.Vector{X: float64(c) * squareSize, Y: float64(r) * squareSize})
		}
	}
	return pts
}

// CornerSet is one detection of a board: Rows*Cols pixel positions, row-major.
type CornerSet []r2.Point

// CalibrationSample is a detected corner set for one calibration image.
type CalibrationSample struct {
	Path    string
	Corners CornerSet
}

// CanonicalOrder reorders a detected corner set so that rows run left to right and
// successive rows go down the image. OpenCV may start from any board corner, and for
// square geometries may return the grid transposed; every such variant is considered.
func CanonicalOrder(cs CornerSet, g BoardGeometry) CornerSet {
	if len(cs) != g.NumCorners() || len(cs) < 2 {
		return cs
	}

	type variant struct {
		transpose bool
		flipRows  bool
		flipCols  bool
	}

	var variants []variant
	for _, t := range []bool{false, true} {
		if t && g.Rows != g.Cols {
			continue
		}
		for _, fr := range []bool{false, true} {
			for _, fc := range []bool{false, true} {
				variants = append(variants, variant{transpose: t, flipRows: fr, flipCols: fc})
			}
		}
	}

	at := func(v variant, r, c int) r2.Point {
		if v.flipRows {
			r = g.Rows - 1 - r
		}
		if v.flipCols {
			c = g.Cols - 1 - c
		}
		if v.transpose {
			r, c = c, r
		}
		return cs[r*g.Cols+c]
	}

	best := variants[0]
	bestScore := math.Inf(-1)
	for _, v := range variants {
		score := 0.0
		if g.Cols > 1 {
			u := at(v, 0, 1).Sub(at(v, 0, 0))
			if n := u.Norm(); n > 0 {
				score += u.X / n
			}
		}
		if g.Rows > 1 {
			d := at(v, 1, 0).Sub(at(v, 0, 0))
			if n := d.Norm(); n > 0 {
				score += d.Y / n
			}
		}
		if score > bestScore+1e-9 {
			best, bestScore = v, score
		}
	}

	out := make(CornerSet, 0, len(cs))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			out = append(out, at(best, r, c))
		}
	}
	return out
}
