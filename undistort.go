package boardcal

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/rdk/rimage/transform"
)

// OptimalNewCameraMatrix returns the camera matrix for an undistorted image of the
// calibrated size. alpha 0 keeps only pixels that are valid after undistortion; alpha 1
// keeps every source pixel in view.
func OptimalNewCameraMatrix(ci *CameraIntrinsics, alpha float64) transform.PinholeCameraIntrinsics {
	const n = 9
	p := ci.Pinhole
	w, h := float64(p.Width-1), float64(p.Height-1)

	var pts [n][n][2]float64
	oxMin, oyMin := math.Inf(1), math.Inf(1)
	oxMax, oyMax := math.Inf(-1), math.Inf(-1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			u := float64(j) * w / (n - 1)
			v := float64(i) * h / (n - 1)
			x, y := undistortNormalized(ci.Distortion, (u-p.Ppx)/p.Fx, (v-p.Ppy)/p.Fy)
			pts[i][j] = [2]float64{x, y}
			oxMin, oxMax = math.Min(oxMin, x), math.Max(oxMax, x)
			oyMin, oyMax = math.Min(oyMin, y), math.Max(oyMax, y)
		}
	}

	ixMin, iyMin := math.Inf(-1), math.Inf(-1)
	ixMax, iyMax := math.Inf(1), math.Inf(1)
	for k := 0; k < n; k++ {
		ixMin = math.Max(ixMin, pts[k][0][0])
		ixMax = math.Min(ixMax, pts[k][n-1][0])
		iyMin = math.Max(iyMin, pts[0][k][1])
		iyMax = math.Min(iyMax, pts[n-1][k][1])
	}

	fx0, fy0 := w/(ixMax-ixMin), h/(iyMax-iyMin)
	cx0, cy0 := -fx0*ixMin, -fy0*iyMin
	fx1, fy1 := w/(oxMax-oxMin), h/(oyMax-oyMin)
	cx1, cy1 := -fx1*oxMin, -fy1*oyMin

	lerp := func(a, b float64) float64 { return a*(1-alpha) + b*alpha }
	return transform.PinholeCameraIntrinsics{
		Width:  p.Width,
		Height: p.Height,
		Fx:     lerp(fx0, fx1),
		Fy:     lerp(fy0, fy1),
		Ppx:    lerp(cx0, cx1),
		Ppy:    lerp(cy0, cy1),
	}
}

// UndistortImage removes lens distortion from img, rendering it through newK. The image
// must be the size the intrinsics were calibrated at.
func UndistortImage(img image.Image, ci *CameraIntrinsics, newK transform.PinholeCameraIntrinsics) (*image.NRGBA, error) {
	size := img.Bounds().Size()
	if size != ci.ImageSize() {
		return nil, errors.Wrapf(ErrDimensionMismatch,
			"image is %dx%d but intrinsics were calibrated at %dx%d", size.X, size.Y, ci.Pinhole.Width, ci.Pinhole.Height)
	}
	src := toNRGBA(img)
	p := ci.Pinhole
	dist := ci.Distortion
	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for v := 0; v < size.Y; v++ {
		for u := 0; u < size.X; u++ {
			x := (float64(u) - newK.Ppx) / newK.Fx
			y := (float64(v) - newK.Ppy) / newK.Fy
			x, y = dist.Transform(x, y)
			c, _ := sampleBilinear(src, x*p.Fx+p.Ppx, y*p.Fy+p.Ppy)
			out.SetNRGBA(u, v, c)
		}
	}
	return out, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// sampleBilinear reads src at a sub-pixel position with pixel centers on integer
// coordinates. Positions outside the image are opaque black and report false.
func sampleBilinear(src *image.NRGBA, x, y float64) (color.NRGBA, bool) {
	b := src.Bounds()
	const eps = 1e-6
	maxX, maxY := float64(b.Dx()-1), float64(b.Dy()-1)
	if math.IsNaN(x) || math.IsNaN(y) || x < -eps || y < -eps || x > maxX+eps || y > maxY+eps {
		return color.NRGBA{0, 0, 0, 255}, false
	}
	x = math.Min(math.Max(x, 0), maxX)
	y = math.Min(math.Max(y, 0), maxY)
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	if x1 > b.Dx()-1 {
		x1 = x0
	}
	if y1 > b.Dy()-1 {
		y1 = y0
	}
	fx, fy := x-float64(x0), y-float64(y0)

	at := func(px, py int) []uint8 {
		i := src.PixOffset(px, py)
		return src.Pix[i : i+4]
	}
	c00, c10, c01, c11 := at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1)
	var out [4]uint8
	for k := 0; k < 4; k++ {
		top := float64(c00[k])*(1-fx) + float64(c10[k])*fx
		bot := float64(c01[k])*(1-fx) + float64(c11[k])*fx
		out[k] = uint8(math.Round(top*(1-fy) + bot*fy))
	}
	return color.NRGBA{out[0], out[1], out[2], out[3]}, true
}
