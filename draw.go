package boardcal

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/basicfont"
)

var (
	overlayGreen = color.RGBA{0, 255, 0, 255}
	markerColors = []color.RGBA{
		{255, 0, 0, 255},
		{255, 128, 0, 255},
		{255, 255, 0, 255},
		{0, 255, 0, 255},
		{0, 255, 255, 255},
		{0, 0, 255, 255},
		{255, 0, 255, 255},
	}
)

// DrawCorners returns a copy of img with the detected corners drawn, each row in its own
// color and rows joined by a polyline the way OpenCV shows a found chessboard.
func DrawCorners(img image.Image, g BoardGeometry, corners CornerSet) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)
	for r := 0; r < g.Rows; r++ {
		dc.SetColor(markerColors[r%len(markerColors)])
		for c := 0; c < g.Cols; c++ {
			idx := r*g.Cols + c
			if idx >= len(corners) {
				break
			}
			p := corners[idx]
			if c > 0 {
				prev := corners[idx-1]
				dc.DrawLine(prev.X, prev.Y, p.X, p.Y)
				dc.Stroke()
			}
			dc.DrawCircle(p.X, p.Y, 5)
			dc.Stroke()
		}
	}
	return dc.Image()
}

// drawClickMarkers draws the numbered click markers used by a click session canvas.
func drawClickMarkers(img image.Image, clicks []r2.Point) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(overlayGreen)
	for i, p := range clicks {
		dc.DrawCircle(p.X, p.Y, 8)
		dc.Fill()
		dc.DrawString(fmt.Sprintf("%d", i+1), p.X+10, p.Y-10)
	}
	return dc.Image()
}

// HueImage keeps only the hue of each pixel, at full saturation and value. Light and dark
// squares of a colored board separate much more clearly this way.
func HueImage(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cf, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			h, _, _ := cf.Hsv()
			dst.Set(x-b.Min.X, y-b.Min.Y, colorful.Hsv(h, 1, 1))
		}
	}
	return dst
}
