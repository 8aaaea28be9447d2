package boardcal

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/corentings/chess/v2"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"golang.org/x/image/font/basicfont"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
)

// LabelOrigin names the corner of the canonical image that holds square a1.
type LabelOrigin string

const (
	// LabelOriginBottomLeft is the usual diagram view from white's side.
	LabelOriginBottomLeft = LabelOrigin("bottom-left")
	// LabelOriginTopLeft is how the capture rig sees the board.
	LabelOriginTopLeft = LabelOrigin("top-left")
	// LabelOriginTopRight is the view from black's side.
	LabelOriginTopRight = LabelOrigin("top-right")
	// LabelOriginBottomRight is the remaining rotation.
	LabelOriginBottomRight = LabelOrigin("bottom-right")
)

// ParseLabelOrigin accepts the four corner names.
func ParseLabelOrigin(s string) (LabelOrigin, error) {
	o := LabelOrigin(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case LabelOriginBottomLeft, LabelOriginTopLeft, LabelOriginTopRight, LabelOriginBottomRight:
		return o, nil
	default:
		return "", errors.Errorf("unknown label origin %q, want bottom-left, top-left, top-right or bottom-right", s)
	}
}

// label maps a cell's position (fileIdx left to right, rankIdx bottom to top) to the
// board file and rank it shows.
func (o LabelOrigin) label(fileIdx, rankIdx, n int) (int, int) {
	switch o {
	case LabelOriginTopLeft:
		return n - 1 - rankIdx, fileIdx
	case LabelOriginTopRight:
		return n - 1 - fileIdx, n - 1 - rankIdx
	case LabelOriginBottomRight:
		return rankIdx, n - 1 - fileIdx
	default:
		return fileIdx, rankIdx
	}
}

// GridConfig configures a GridDecomposer.
type GridConfig struct {
	Canonical   CanonicalConfig `yaml:"canonical" json:"canonical"`
	BoardN      int             `yaml:"board_n" json:"board_n"`
	LabelOrigin LabelOrigin     `yaml:"label_origin" json:"label_origin"`
	DrawLabels  bool            `yaml:"draw_labels" json:"draw_labels"`
}

// DefaultGridConfig is an 8x8 board seen by the capture rig.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Canonical:   DefaultCanonicalConfig(),
		BoardN:      8,
		LabelOrigin: LabelOriginTopLeft,
		DrawLabels:  true,
	}
}

// Validate checks the board size and label origin.
func (c GridConfig) Validate() error {
	if err := c.Canonical.Validate(); err != nil {
		return err
	}
	if c.BoardN < 1 || c.BoardN > 26 {
		return errors.Errorf("board size must be between 1 and 26, got %d", c.BoardN)
	}
	_, err := ParseLabelOrigin(string(c.LabelOrigin))
	return err
}

// GridCell is one board square in the canonical image.
type GridCell struct {
	Name string
	// FileIdx counts image columns left to right, RankIdx image rows bottom to top.
	FileIdx int
	RankIdx int
	// File and Rank are the board coordinates the cell is labeled with, 0-based.
	File int
	Rank int
	Rect image.Rectangle
}

// SquareCrop is the image of one cell.
type SquareCrop struct {
	Cell  GridCell
	Image image.Image
}

// Decomposition is the result of splitting a canonical board image.
type Decomposition struct {
	Crops   []SquareCrop
	Overlay image.Image
	// Advisories are non-fatal problems, such as an unexpected image size.
	Advisories []string
}

// Square finds a crop by name.
func (d *Decomposition) Square(name string) (SquareCrop, bool) {
	for _, c := range d.Crops {
		if c.Cell.Name == name {
			return c, true
		}
	}
	return SquareCrop{}, false
}

// GridDecomposer splits canonical board images into labeled squares.
type GridDecomposer struct {
	cfg    GridConfig
	logger logging.Logger
}

// NewGridDecomposer validates cfg.
func NewGridDecomposer(cfg GridConfig, logger logging.Logger) (*GridDecomposer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GridDecomposer{cfg: cfg, logger: logger}, nil
}

// SquareName is the algebraic name of a 0-based file and rank.
func SquareName(file, rank, n int) string {
	if n == 8 {
		return chess.NewSquare(chess.File(file), chess.Rank(rank)).String()
	}
	return fmt.Sprintf("%c%d", 'a'+file, rank+1)
}

type gridLines struct {
	xs, ys []float64
}

// lines are the cell boundaries; xs left to right, ys top to bottom.
func (gd *GridDecomposer) lines(b image.Rectangle) gridLines {
	n := gd.cfg.BoardN
	m := float64(gd.cfg.Canonical.Margin)
	stepX := (float64(b.Dx()) - 2*m) / float64(n)
	stepY := (float64(b.Dy()) - 2*m) / float64(n)
	gl := gridLines{xs: make([]float64, n+1), ys: make([]float64, n+1)}
	for i := 0; i <= n; i++ {
		gl.xs[i] = float64(b.Min.X) + m + float64(i)*stepX
		gl.ys[i] = float64(b.Min.Y) + m + float64(i)*stepY
	}
	return gl
}

// Cells lays the grid over an image with bounds b.
func (gd *GridDecomposer) Cells(b image.Rectangle) ([]GridCell, error) {
	n := gd.cfg.BoardN
	m := gd.cfg.Canonical.Margin
	if b.Dx()-2*m < n || b.Dy()-2*m < n {
		return nil, errors.Wrapf(ErrDimensionMismatch, "a %dx%d image has no room for a %d square board inside margin %d",
			b.Dx(), b.Dy(), n, m)
	}
	gl := gd.lines(b)

	cells := make([]GridCell, 0, n*n)
	seen := make(map[string]bool, n*n)
	for imgRank := 0; imgRank < n; imgRank++ {
		rankIdx := n - 1 - imgRank
		for fileIdx := 0; fileIdx < n; fileIdx++ {
			file, rank := gd.cfg.LabelOrigin.label(fileIdx, rankIdx, n)
			name := SquareName(file, rank, n)
			if seen[name] {
				return nil, errors.Errorf("square %s labeled twice", name)
			}
			seen[name] = true
			cells = append(cells, GridCell{
				Name:    name,
				FileIdx: fileIdx,
				RankIdx: rankIdx,
				File:    file,
				Rank:    rank,
				Rect: image.Rect(
					int(math.Round(gl.xs[fileIdx])), int(math.Round(gl.ys[imgRank])),
					int(math.Round(gl.xs[fileIdx+1])), int(math.Round(gl.ys[imgRank+1])),
				),
			})
		}
	}
	if len(seen) != n*n {
		return nil, errors.Errorf("expected %d distinct squares, got %d", n*n, len(seen))
	}
	return cells, nil
}

// Decompose crops every square of img and draws the grid overlay.
func (gd *GridDecomposer) Decompose(img image.Image) (*Decomposition, error) {
	b := img.Bounds()
	d := &Decomposition{}
	s := gd.cfg.Canonical.Size
	if b.Dx() != s || b.Dy() != s {
		msg := errors.Wrapf(ErrDimensionMismatch, "image is %dx%d, expected %dx%d; using actual size",
			b.Dx(), b.Dy(), s, s).Error()
		gd.logger.Warn(msg)
		d.Advisories = append(d.Advisories, msg)
	}

	cells, err := gd.Cells(b)
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		d.Crops = append(d.Crops, SquareCrop{Cell: c, Image: imaging.Crop(img, c.Rect)})
	}
	d.Overlay = gd.Overlay(img, cells)
	return d, nil
}

// Overlay draws the board outline, the interior grid lines and optionally each cell's
// name.
func (gd *GridDecomposer) Overlay(img image.Image, cells []GridCell) image.Image {
	b := img.Bounds()
	gl := gd.lines(b)
	n := gd.cfg.BoardN

	dc := gg.NewContextForImage(img)
	dc.SetColor(overlayGreen)
	dc.SetLineWidth(2)
	dc.DrawRectangle(gl.xs[0]-float64(b.Min.X), gl.ys[0]-float64(b.Min.Y), gl.xs[n]-gl.xs[0], gl.ys[n]-gl.ys[0])
	dc.Stroke()

	dc.SetLineWidth(1)
	for i := 1; i < n; i++ {
		x := gl.xs[i] - float64(b.Min.X)
		y := gl.ys[i] - float64(b.Min.Y)
		dc.DrawLine(x, gl.ys[0]-float64(b.Min.Y), x, gl.ys[n]-float64(b.Min.Y))
		dc.DrawLine(gl.xs[0]-float64(b.Min.X), y, gl.xs[n]-float64(b.Min.X), y)
	}
	dc.Stroke()

	if gd.cfg.DrawLabels {
		dc.SetFontFace(basicfont.Face7x13)
		for _, c := range cells {
			dc.DrawString(c.Name, float64(c.Rect.Min.X-b.Min.X+4), float64(c.Rect.Min.Y-b.Min.Y+14))
		}
	}
	return dc.Image()
}

// WriteSquares saves each crop as <name>.png in dir.
func WriteSquares(dir string, crops []SquareCrop) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %s", dir)
	}
	for _, c := range crops {
		p := filepath.Join(dir, c.Cell.Name+".png")
		if err := rimage.WriteImageToFile(p, c.Image); err != nil {
			return errors.Wrapf(err, "cannot write %s", p)
		}
	}
	return nil
}
