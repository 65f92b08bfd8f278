package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// BasicEngineName selects the gopdf fallback engine
const BasicEngineName = "basic"

// Layout in PDF points on an A4 page; the origin is the top-left corner.
const (
	basicMargin     = 51.0
	basicLineGap    = 16.0
	basicLabelInset = 12.0
	basicValueInset = 120.0
	basicImagePad   = 20.0
)

const (
	basicRegular = "go-regular"
	basicBold    = "go-bold"
)

// BasicEngine renders with signintech/gopdf and the embedded Go fonts.
type BasicEngine struct{}

// NewBasicEngine creates the fallback engine
func NewBasicEngine() *BasicEngine { return &BasicEngine{} }

// Name returns the engine name
func (e *BasicEngine) Name() string { return BasicEngineName }

// Render lays out the same box, table and image as the primary engine
func (e *BasicEngine) Render(doc Document) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetInfo(gopdf.PdfInfo{Title: doc.Title})
	pdf.AddPage()

	if err := pdf.AddTTFFontByReader(basicRegular, bytes.NewReader(goregular.TTF)); err != nil {
		return nil, fmt.Errorf("failed to load regular font: %w", err)
	}
	if err := pdf.AddTTFFontByReader(basicBold, bytes.NewReader(gobold.TTF)); err != nil {
		return nil, fmt.Errorf("failed to load bold font: %w", err)
	}

	page := gopdf.PageSizeA4
	x, y := basicMargin, basicMargin
	boxW, boxH := page.W-2*basicMargin, page.H-2*basicMargin

	pdf.SetLineWidth(1.2)
	pdf.SetStrokeColor(0x44, 0x44, 0x44)
	pdf.RectFromUpperLeftWithStyle(x, y, boxW, boxH, "D")

	if err := e.text(pdf, basicBold, 16, x+10, y+12, doc.Title); err != nil {
		return nil, err
	}

	lineY := y + 42
	for _, f := range doc.Fields {
		if err := e.text(pdf, basicBold, 11, x+basicLabelInset, lineY, f.Label+":"); err != nil {
			return nil, err
		}
		if err := e.text(pdf, basicRegular, 11, x+basicValueInset, lineY, f.Value); err != nil {
			return nil, err
		}
		lineY += basicLineGap
	}

	e.drawImage(pdf, doc.Image, x, boxW, lineY+10, y+boxH)

	out, err := pdf.GetBytesPdfReturnErr()
	if err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return out, nil
}

func (e *BasicEngine) text(pdf *gopdf.GoPdf, font string, size, x, y float64, s string) error {
	if err := pdf.SetFont(font, "", size); err != nil {
		return fmt.Errorf("failed to set font %s: %w", font, err)
	}
	pdf.SetXY(x, y)
	if err := pdf.Cell(nil, s); err != nil {
		return fmt.Errorf("failed to write %q: %w", s, err)
	}
	return nil
}

// drawImage embeds the image below the table; any failure leaves the page without it.
func (e *BasicEngine) drawImage(pdf *gopdf.GoPdf, data []byte, x, boxW, top, boxBottom float64) {
	cfg, format, ok := probeImage(data)
	if !ok {
		return
	}

	maxW := boxW - 2*basicLabelInset
	maxH := boxBottom - basicImagePad - top
	w, h := fitImage(float64(cfg.Width), float64(cfg.Height), maxW, maxH)
	if w <= 0 || h <= 0 {
		return
	}

	if format != "jpeg" {
		flat, err := flattenToJPEG(data)
		if err != nil {
			return
		}
		data = flat
	}

	holder, err := gopdf.ImageHolderByBytes(data)
	if err != nil {
		return
	}
	_ = pdf.ImageByHolder(holder, x+(boxW-w)/2, boxBottom-basicImagePad-h, &gopdf.Rect{W: w, H: h})
}

// flattenToJPEG re-encodes PNG and GIF uploads onto a white background so
// gopdf only ever sees baseline JPEG.
func flattenToJPEG(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
