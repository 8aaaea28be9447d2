package boardcal

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage/transform"
)

func testRectifier(t *testing.T) *Rectifier {
	t.Helper()
	r, err := NewRectifier(DefaultCanonicalConfig(), DefaultRectifyOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return r
}

// patternImage has a distinct, smooth color at every pixel.
func patternImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x / 4), uint8(y / 4), uint8((x + y) / 8), 255})
		}
	}
	return img
}

func TestNewClickSet(t *testing.T) {
	for _, n := range []int{0, 3, 5} {
		_, err := NewClickSet(make([]r2.Point, n))
		test.That(t, errors.Is(err, ErrInvalidClickCount), test.ShouldBeTrue)
	}
	cs, err := NewClickSet(points(1, 2, 3, 4, 5, 6, 7, 8))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cs[2], test.ShouldResemble, r2.Point{X: 5, Y: 6})
}

func TestRectifyOutputSize(t *testing.T) {
	r := testRectifier(t)
	clicks := quad(120, 80, 520, 95, 540, 420, 100, 400)

	for _, size := range []image.Point{image.Pt(640, 480), image.Pt(1920, 1080), image.Pt(300, 900)} {
		out, err := r.Rectify(patternImage(size.X, size.Y), nil, clicks)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Bounds().Dx(), test.ShouldEqual, 1024)
		test.That(t, out.Bounds().Dy(), test.ShouldEqual, 1024)
	}
}

func TestRectifyIdentityRoundTrip(t *testing.T) {
	r := testRectifier(t)
	src := patternImage(1024, 1024)

	out, err := r.Rectify(src, nil, DefaultCanonicalConfig().DestinationCorners())
	test.That(t, err, test.ShouldBeNil)
	for _, p := range []image.Point{image.Pt(0, 0), image.Pt(136, 136), image.Pt(500, 700), image.Pt(887, 887), image.Pt(1023, 1023)} {
		test.That(t, out.NRGBAAt(p.X, p.Y), test.ShouldResemble, src.NRGBAAt(p.X, p.Y))
	}
}

func TestRectifyMapsClicksToMargins(t *testing.T) {
	r := testRectifier(t)
	clicks := quad(100, 50, 600, 80, 620, 450, 80, 430)

	h, err := r.PerspectiveTransform(clicks)
	test.That(t, err, test.ShouldBeNil)
	dst := DefaultCanonicalConfig().DestinationCorners()
	for i, c := range clicks {
		p := applyHomography(h, c)
		test.That(t, p.X, test.ShouldAlmostEqual, dst[i].X, 1e-6)
		test.That(t, p.Y, test.ShouldAlmostEqual, dst[i].Y, 1e-6)
	}
	test.That(t, dst[0], test.ShouldResemble, r2.Point{X: 136, Y: 136})
	test.That(t, dst[2], test.ShouldResemble, r2.Point{X: 888, Y: 888})
}

func TestRectifyBlackOutside(t *testing.T) {
	r := testRectifier(t)
	// the board fills the whole source, so the margin maps outside it
	out, err := r.Rectify(patternImage(200, 200), nil, quad(0, 0, 199, 0, 199, 199, 0, 199))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.NRGBAAt(10, 10), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})
	test.That(t, out.NRGBAAt(1015, 500), test.ShouldResemble, color.NRGBA{0, 0, 0, 255})
}

func TestRectifyDegenerate(t *testing.T) {
	r := testRectifier(t)
	img := patternImage(100, 100)

	for _, clicks := range []ClickSet{
		quad(0, 0, 50, 0, 100, 0, 0, 100),    // collinear
		quad(0, 0, 100, 100, 100, 0, 0, 100), // self-intersecting
		quad(0, 0, 100, 0, 20, 20, 0, 100),   // reflex corner
		quad(10, 10, 10, 10, 10, 10, 10, 10), // one point
	} {
		_, err := r.Rectify(img, nil, clicks)
		test.That(t, errors.Is(err, ErrDegenerateClicks), test.ShouldBeTrue)
	}
}

func TestRectifyDimensionMismatch(t *testing.T) {
	r := testRectifier(t)
	ci := &CameraIntrinsics{Pinhole: transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
	}}
	_, err := r.Rectify(patternImage(800, 600), ci, quad(10, 10, 600, 10, 600, 400, 10, 400))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)

	out, err := r.Rectify(patternImage(640, 480), ci, quad(10, 10, 600, 10, 600, 400, 10, 400))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 1024)
}

func TestNewRectifierValidates(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewRectifier(CanonicalConfig{Size: 100, Margin: 50}, DefaultRectifyOptions(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewRectifier(DefaultCanonicalConfig(), RectifyOptions{Alpha: 2}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOptimalNewCameraMatrixNoDistortion(t *testing.T) {
	ci := &CameraIntrinsics{Pinhole: transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480, Fx: 500, Fy: 510, Ppx: 320, Ppy: 240,
	}}
	for _, alpha := range []float64{0, 0.5, 1} {
		k := OptimalNewCameraMatrix(ci, alpha)
		test.That(t, k.Fx, test.ShouldAlmostEqual, 500, 1e-6)
		test.That(t, k.Fy, test.ShouldAlmostEqual, 510, 1e-6)
		test.That(t, k.Ppx, test.ShouldAlmostEqual, 320, 1e-6)
		test.That(t, k.Ppy, test.ShouldAlmostEqual, 240, 1e-6)
	}

	img := patternImage(640, 480)
	out, err := UndistortImage(img, ci, OptimalNewCameraMatrix(ci, 1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.NRGBAAt(100, 200), test.ShouldResemble, img.NRGBAAt(100, 200))
}

func TestOptimalNewCameraMatrixBarrel(t *testing.T) {
	ci := &CameraIntrinsics{
		Pinhole: transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
		},
		Distortion: transform.BrownConrady{RadialK1: -0.2},
	}
	keepAll := OptimalNewCameraMatrix(ci, 1)
	validOnly := OptimalNewCameraMatrix(ci, 0)
	// keeping every source pixel zooms out
	test.That(t, keepAll.Fx, test.ShouldBeLessThan, validOnly.Fx)
	test.That(t, keepAll.Fx, test.ShouldBeLessThan, 500)

	xd, yd := 0.3, -0.2
	x, y := undistortNormalized(ci.Distortion, xd, yd)
	rx, ry := ci.Distortion.Transform(x, y)
	test.That(t, rx, test.ShouldAlmostEqual, xd, 1e-6)
	test.That(t, ry, test.ShouldAlmostEqual, yd, 1e-6)
}
