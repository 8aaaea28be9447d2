package boardcal

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"go.viam.com/test"

	"go.viam.com/rdk/logging"
)

func testGrid(t *testing.T, origin LabelOrigin) *GridDecomposer {
	t.Helper()
	cfg := DefaultGridConfig()
	cfg.LabelOrigin = origin
	gd, err := NewGridDecomposer(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return gd
}

func allSquareNames() []string {
	names := []string{}
	for _, f := range "abcdefgh" {
		for r := '1'; r <= '8'; r++ {
			names = append(names, string(f)+string(r))
		}
	}
	sort.Strings(names)
	return names
}

func TestDecomposeNames(t *testing.T) {
	for _, origin := range []LabelOrigin{LabelOriginBottomLeft, LabelOriginTopLeft, LabelOriginTopRight, LabelOriginBottomRight} {
		gd := testGrid(t, origin)
		d, err := gd.Decompose(patternImage(1024, 1024))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(d.Crops), test.ShouldEqual, 64)
		test.That(t, len(d.Advisories), test.ShouldEqual, 0)

		names := []string{}
		for _, c := range d.Crops {
			names = append(names, c.Cell.Name)
		}
		sort.Strings(names)
		test.That(t, names, test.ShouldResemble, allSquareNames())
	}
}

func TestDecomposeGeometry(t *testing.T) {
	gd := testGrid(t, LabelOriginBottomLeft)
	cells, err := gd.Cells(image.Rect(0, 0, 1024, 1024))
	test.That(t, err, test.ShouldBeNil)

	// step is (1024 - 2*136) / 8 = 94
	for _, c := range cells {
		if c.FileIdx == 0 && c.RankIdx == 7 {
			test.That(t, c.Name, test.ShouldEqual, "a8")
			test.That(t, c.Rect, test.ShouldResemble, image.Rect(136, 136, 230, 230))
		}
		if c.FileIdx == 7 && c.RankIdx == 0 {
			test.That(t, c.Name, test.ShouldEqual, "h1")
			test.That(t, c.Rect, test.ShouldResemble, image.Rect(794, 794, 888, 888))
		}
		test.That(t, c.Rect.Dx(), test.ShouldEqual, 94)
		test.That(t, c.Rect.Dy(), test.ShouldEqual, 94)
	}
}

func TestLabelOrigins(t *testing.T) {
	corner := func(gd *GridDecomposer, fileIdx, rankIdx int) string {
		cells, err := gd.Cells(image.Rect(0, 0, 1024, 1024))
		test.That(t, err, test.ShouldBeNil)
		for _, c := range cells {
			if c.FileIdx == fileIdx && c.RankIdx == rankIdx {
				return c.Name
			}
		}
		return ""
	}

	// fileIdx 0, rankIdx 7 is the top-left cell of the image
	test.That(t, corner(testGrid(t, LabelOriginBottomLeft), 0, 0), test.ShouldEqual, "a1")
	test.That(t, corner(testGrid(t, LabelOriginBottomLeft), 0, 7), test.ShouldEqual, "a8")

	test.That(t, corner(testGrid(t, LabelOriginTopLeft), 0, 7), test.ShouldEqual, "a1")
	test.That(t, corner(testGrid(t, LabelOriginTopLeft), 1, 7), test.ShouldEqual, "a2")
	test.That(t, corner(testGrid(t, LabelOriginTopLeft), 0, 6), test.ShouldEqual, "b1")
	test.That(t, corner(testGrid(t, LabelOriginTopLeft), 7, 0), test.ShouldEqual, "h8")

	test.That(t, corner(testGrid(t, LabelOriginTopRight), 7, 7), test.ShouldEqual, "a1")
	test.That(t, corner(testGrid(t, LabelOriginTopRight), 0, 0), test.ShouldEqual, "h8")

	test.That(t, corner(testGrid(t, LabelOriginBottomRight), 7, 0), test.ShouldEqual, "a1")
	test.That(t, corner(testGrid(t, LabelOriginBottomRight), 0, 7), test.ShouldEqual, "h8")
}

func TestDecomposeCropContent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1024, 1024))
	// paint the top-left board cell red
	for y := 136; y < 230; y++ {
		for x := 136; x < 230; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
		}
	}
	gd := testGrid(t, LabelOriginTopLeft)
	d, err := gd.Decompose(img)
	test.That(t, err, test.ShouldBeNil)

	a1, ok := d.Square("a1")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, a1.Image.Bounds().Dx(), test.ShouldEqual, 94)
	r, g, _, _ := a1.Image.At(a1.Image.Bounds().Min.X+47, a1.Image.Bounds().Min.Y+47).RGBA()
	test.That(t, int(r>>8), test.ShouldEqual, 255)
	test.That(t, int(g>>8), test.ShouldEqual, 0)

	_, ok = d.Square("z9")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDecomposeSizeAdvisory(t *testing.T) {
	gd := testGrid(t, LabelOriginTopLeft)
	d, err := gd.Decompose(patternImage(800, 800))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(d.Advisories), test.ShouldEqual, 1)
	test.That(t, d.Advisories[0], test.ShouldContainSubstring, "800x800")
	test.That(t, len(d.Crops), test.ShouldEqual, 64)
	// (800 - 272) / 8 = 66
	test.That(t, d.Crops[0].Cell.Rect, test.ShouldResemble, image.Rect(136, 136, 202, 202))

	_, err = gd.Decompose(patternImage(200, 200))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecomposeOtherBoardSizes(t *testing.T) {
	cfg := DefaultGridConfig()
	cfg.BoardN = 10
	cfg.LabelOrigin = LabelOriginBottomLeft
	gd, err := NewGridDecomposer(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	d, err := gd.Decompose(patternImage(1024, 1024))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(d.Crops), test.ShouldEqual, 100)
	_, ok := d.Square("j10")
	test.That(t, ok, test.ShouldBeTrue)

	cfg.BoardN = 0
	_, err = NewGridDecomposer(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseLabelOrigin(t *testing.T) {
	o, err := ParseLabelOrigin("Top-Left")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, o, test.ShouldEqual, LabelOriginTopLeft)
	_, err = ParseLabelOrigin("middle")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWriteSquares(t *testing.T) {
	gd := testGrid(t, LabelOriginTopLeft)
	d, err := gd.Decompose(patternImage(1024, 1024))
	test.That(t, err, test.ShouldBeNil)

	dir := filepath.Join(t.TempDir(), "squares")
	test.That(t, WriteSquares(dir, d.Crops), test.ShouldBeNil)
	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 64)
	_, err = os.Stat(filepath.Join(dir, "e4.png"))
	test.That(t, err, test.ShouldBeNil)
}
