package boardcal

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestParseBoardGeometry(t *testing.T) {
	g, err := ParseBoardGeometry("7x10")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g, test.ShouldResemble, BoardGeometry{Rows: 7, Cols: 10})
	test.That(t, g.String(), test.ShouldEqual, "7x10")
	test.That(t, g.NumCorners(), test.ShouldEqual, 70)

	g, err = ParseBoardGeometry(" 6X9 ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g, test.ShouldResemble, BoardGeometry{Rows: 6, Cols: 9})

	for _, bad := range []string{"", "7", "7x", "x7", "7x7x7", "0x7", "-1x3", "axb"} {
		_, err := ParseBoardGeometry(bad)
		test.That(t, err, test.ShouldNotBeNil)
	}

	gs, err := ParseBoardGeometries([]string{"7x7", "8x11"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gs, test.ShouldResemble, []BoardGeometry{{7, 7}, {8, 11}})
}

func TestObjectPoints(t *testing.T) {
	pts := ObjectPoints(BoardGeometry{Rows: 2, Cols: 3}, 0.5)
	test.That(t, len(pts), test.ShouldEqual, 6)
	test.That(t, pts[0].X, test.ShouldEqual, 0.0)
	test.That(t, pts[2].X, test.ShouldEqual, 1.0)
	test.That(t, pts[2].Y, test.ShouldEqual, 0.0)
	test.That(t, pts[3].X, test.ShouldEqual, 0.0)
	test.That(t, pts[3].Y, test.ShouldEqual, 0.5)
	for _, p := range pts {
		test.That(t, p.Z, test.ShouldEqual, 0.0)
	}
}

func gridCorners(g BoardGeometry, x0, y0, step float64) CornerSet {
	cs := CornerSet{}
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			cs = append(cs, r2.Point{X: x0 + float64(c)*step, Y: y0 + float64(r)*step})
		}
	}
	return cs
}

func TestCanonicalOrder(t *testing.T) {
	g := BoardGeometry{Rows: 3, Cols: 4}
	want := gridCorners(g, 100, 50, 10)

	test.That(t, CanonicalOrder(want, g), test.ShouldResemble, want)

	// fully reversed, as when OpenCV starts from the bottom-right corner
	rev := make(CornerSet, len(want))
	for i, p := range want {
		rev[len(want)-1-i] = p
	}
	test.That(t, CanonicalOrder(rev, g), test.ShouldResemble, want)

	// each row reversed
	flipped := CornerSet{}
	for r := 0; r < g.Rows; r++ {
		for c := g.Cols - 1; c >= 0; c-- {
			flipped = append(flipped, want[r*g.Cols+c])
		}
	}
	test.That(t, CanonicalOrder(flipped, g), test.ShouldResemble, want)
}

func TestCanonicalOrderTransposed(t *testing.T) {
	g := BoardGeometry{Rows: 3, Cols: 3}
	want := gridCorners(g, 0, 0, 20)

	transposed := CornerSet{}
	for c := 0; c < g.Cols; c++ {
		for r := 0; r < g.Rows; r++ {
			transposed = append(transposed, want[r*g.Cols+c])
		}
	}
	test.That(t, CanonicalOrder(transposed, g), test.ShouldResemble, want)
}
