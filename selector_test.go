package boardcal

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rdk/logging"
)

// fakePrepared remembers which image it came from.
type fakePrepared struct {
	idx  int
	size image.Point
}

func (p *fakePrepared) Size() image.Point { return p.size }
func (p *fakePrepared) Close() error      { return nil }

// fakeDetector reads an image index from the red channel of pixel (0,0) and succeeds for
// the geometries listed for that index.
type fakeDetector struct {
	found   map[int][]BoardGeometry
	corners func(idx int, g BoardGeometry) CornerSet
	calls   []string
}

func (d *fakeDetector) Preprocess(img image.Image) (PreparedImage, error) {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return &fakePrepared{idx: int(r >> 8), size: img.Bounds().Size()}, nil
}

func (d *fakeDetector) FindCorners(p PreparedImage, g BoardGeometry) (CornerSet, bool) {
	fp := p.(*fakePrepared)
	d.calls = append(d.calls, fmt.Sprintf("%d:%v", fp.idx, g))
	for _, ok := range d.found[fp.idx] {
		if ok == g {
			if d.corners != nil {
				return d.corners(fp.idx, g), true
			}
			return gridCorners(g, 10, 10, 5), true
		}
	}
	return nil, false
}

func indexedImage(idx int, size image.Point) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	img.SetNRGBA(0, 0, color.NRGBA{uint8(idx), 0, 0, 255})
	return img
}

func indexedImages(n int) []CalibrationImage {
	out := []CalibrationImage{}
	for i := 0; i < n; i++ {
		out = append(out, CalibrationImage{Path: fmt.Sprintf("img%02d.png", i), Image: indexedImage(i, image.Pt(64, 48))})
	}
	return out
}

func TestSelectGeometryPicksMostFrequent(t *testing.T) {
	logger := logging.NewTestLogger(t)
	det := &fakeDetector{found: map[int][]BoardGeometry{
		0: {{8, 8}},
		1: {{7, 10}},
		2: {{7, 10}},
		3: {{7, 7}, {7, 10}},
	}}

	sel, err := SelectGeometry(context.Background(), indexedImages(5), DefaultCandidates, det, SelectOptions{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sel.Geometry, test.ShouldResemble, BoardGeometry{7, 10})
	test.That(t, sel.Count(BoardGeometry{7, 10}), test.ShouldEqual, 2)
	test.That(t, sel.Count(BoardGeometry{7, 7}), test.ShouldEqual, 1)
	test.That(t, sel.Count(BoardGeometry{8, 8}), test.ShouldEqual, 1)
	test.That(t, sel.Total, test.ShouldEqual, 5)
	test.That(t, len(sel.Samples), test.ShouldEqual, 2)

	// image 3 stopped at its first success
	for _, c := range det.calls {
		test.That(t, c, test.ShouldNotEqual, "3:7x10")
	}
}

func TestSelectGeometryTieGoesToEarliest(t *testing.T) {
	logger := logging.NewTestLogger(t)
	det := &fakeDetector{found: map[int][]BoardGeometry{
		0: {{6, 9}},
		1: {{8, 8}},
	}}

	sel, err := SelectGeometry(context.Background(), indexedImages(2), DefaultCandidates, det, SelectOptions{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sel.Geometry, test.ShouldResemble, BoardGeometry{8, 8})
}

func TestSelectGeometryExhausted(t *testing.T) {
	logger := logging.NewTestLogger(t)
	det := &fakeDetector{}
	dir := t.TempDir()

	_, err := SelectGeometry(context.Background(), indexedImages(3), DefaultCandidates, det, SelectOptions{DebugDir: dir}, logger)
	test.That(t, errors.Is(err, ErrDetectionExhausted), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, dir)
	test.That(t, len(det.calls), test.ShouldEqual, 3*len(DefaultCandidates))
}

func TestSelectGeometryForced(t *testing.T) {
	logger := logging.NewTestLogger(t)
	det := &fakeDetector{found: map[int][]BoardGeometry{
		0: {{7, 7}},
		1: {{7, 7}, {8, 11}},
	}}

	forced := BoardGeometry{8, 11}
	sel, err := SelectGeometry(context.Background(), indexedImages(2), DefaultCandidates, det, SelectOptions{Forced: &forced}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sel.Geometry, test.ShouldResemble, forced)
	test.That(t, sel.Candidates, test.ShouldResemble, []BoardGeometry{forced})
	test.That(t, sel.Count(forced), test.ShouldEqual, 1)

	forced = BoardGeometry{6, 9}
	_, err = SelectGeometry(context.Background(), indexedImages(2), DefaultCandidates, det, SelectOptions{Forced: &forced}, logger)
	test.That(t, errors.Is(err, ErrForcedGeometryFailed), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "6x9")
}

func TestSelectGeometryDebugImages(t *testing.T) {
	logger := logging.NewTestLogger(t)
	det := &fakeDetector{found: map[int][]BoardGeometry{1: {{7, 7}}}}
	dir := t.TempDir()

	_, err := SelectGeometry(context.Background(), indexedImages(2), DefaultCandidates, det, SelectOptions{DebugDir: dir}, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = os.Stat(filepath.Join(dir, "img01_found_7x7.jpg"))
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(dir, "img00_found_7x7.jpg"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestHarvestSamples(t *testing.T) {
	logger := logging.NewTestLogger(t)
	det := &fakeDetector{found: map[int][]BoardGeometry{
		0: {{7, 10}},
		1: {{7, 7}, {7, 10}},
		2: {{7, 10}},
		3: {{8, 8}},
	}}
	images := indexedImages(4)

	sel, err := SelectGeometry(context.Background(), images, DefaultCandidates, det, SelectOptions{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sel.Geometry, test.ShouldResemble, BoardGeometry{7, 10})
	test.That(t, len(sel.Samples), test.ShouldEqual, 2)

	samples, err := HarvestSamples(context.Background(), images, sel, det, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(samples), test.ShouldEqual, 3)
	test.That(t, samples[0].Path, test.ShouldEqual, "img00.png")
	test.That(t, samples[1].Path, test.ShouldEqual, "img01.png")
	test.That(t, samples[2].Path, test.ShouldEqual, "img02.png")

	// harvesting leaves the tally alone
	test.That(t, sel.Count(BoardGeometry{7, 10}), test.ShouldEqual, 2)
}

func TestSelectGeometryCancelled(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SelectGeometry(ctx, indexedImages(2), DefaultCandidates, &fakeDetector{}, SelectOptions{}, logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
