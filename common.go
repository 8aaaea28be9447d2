package boardcal

import (
	"context"
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/resource"
	"go.viam.com/utils/trace"
)

var family = resource.ModelNamespace("erh").WithFamily("board-calibration")

func init() {
	exporter, err := otlptracegrpc.New(context.Background())
	if err == nil {
		trace.AddExporters(exporter)
	}
}

// firstImage grabs the first image the camera returns.
func firstImage(ctx context.Context, cam camera.Camera, extra map[string]interface{}) (image.Image, resource.ResponseMetadata, error) {
	ni, rm, err := cam.Images(ctx, nil, extra)
	if err != nil {
		return nil, rm, err
	}
	if len(ni) == 0 {
		return nil, rm, fmt.Errorf("no images returned from input camera")
	}
	img, err := ni[0].Image(ctx)
	return img, rm, err
}

// clicksFromConfig turns [[x, y], ...] into a ClickSet.
func clicksFromConfig(raw [][]float64) (ClickSet, error) {
	pts := make([]r2.Point, 0, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return ClickSet{}, fmt.Errorf("corner %d needs [x, y], got %v", i+1, p)
		}
		pts = append(pts, r2.Point{X: p[0], Y: p[1]})
	}
	return NewClickSet(pts)
}
