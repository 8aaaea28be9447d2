package boardcal

import (
	"fmt"

	"codeberg.org/go-pdf/fpdf"
	"github.com/pkg/errors"
)

type pageSize struct {
	name   string
	orient string
	w, h   float64
}

// candidate pages in mm, smallest first.
var targetPages = []pageSize{
	{"A4", "P", 210, 297},
	{"A4", "L", 297, 210},
	{"A3", "P", 297, 420},
	{"A3", "L", 420, 297},
}

const targetMarginMM = 10

// WriteTargetPDF renders a printable calibration checkerboard with g's inner corners,
// meaning (Rows+1)x(Cols+1) squares of squareSizeM meters each, on the smallest page that
// fits it. Print at 100% scale.
func WriteTargetPDF(path string, g BoardGeometry, squareSizeM float64) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if squareSizeM <= 0 {
		return errors.Errorf("square size must be positive, got %v", squareSizeM)
	}
	sq := squareSizeM * 1000
	bw := float64(g.Cols+1) * sq
	bh := float64(g.Rows+1) * sq

	var page *pageSize
	for i := range targetPages {
		p := targetPages[i]
		if bw+2*targetMarginMM <= p.w && bh+2*targetMarginMM+8 <= p.h {
			page = &p
			break
		}
	}
	if page == nil {
		return errors.Errorf("a %v board of %.1f mm squares (%.0fx%.0f mm) does not fit on A3", g, sq, bw, bh)
	}

	pdf := fpdf.New(page.orient, "mm", page.name, "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	x0 := (page.w - bw) / 2
	y0 := (page.h - bh) / 2
	pdf.SetFillColor(0, 0, 0)
	for r := 0; r <= g.Rows; r++ {
		for c := 0; c <= g.Cols; c++ {
			if (r+c)%2 == 0 {
				pdf.Rect(x0+float64(c)*sq, y0+float64(r)*sq, sq, sq, "F")
			}
		}
	}

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(x0, y0+bh+2)
	caption := fmt.Sprintf("%v inner corners, %.1f mm squares. Print at 100%% scale.", g, sq)
	pdf.CellFormat(bw, 5, caption, "", 0, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(path); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}
