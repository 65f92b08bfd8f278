package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// FPDFEngineName selects the go-pdf/fpdf engine
const FPDFEngineName = "fpdf"

// Layout in millimetres on an A4 page.
const (
	fpdfMargin     = 18.0
	fpdfCorner     = 8.0
	fpdfLineGap    = 5.6
	fpdfLabelInset = 4.0
	fpdfValueInset = 42.0
	fpdfImagePad   = 7.0
)

// FPDFEngine is the primary renderer
type FPDFEngine struct{}

// NewFPDFEngine creates the go-pdf/fpdf engine
func NewFPDFEngine() *FPDFEngine { return &FPDFEngine{} }

// Name returns the engine name
func (e *FPDFEngine) Name() string { return FPDFEngineName }

// Render draws the bordered box, the field table and the image
func (e *FPDFEngine) Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	x, y := fpdfMargin, fpdfMargin
	boxW, boxH := pageW-2*fpdfMargin, pageH-2*fpdfMargin

	pdf.SetLineWidth(0.4)
	pdf.SetDrawColor(0x44, 0x44, 0x44)
	pdf.RoundedRect(x, y, boxW, boxH, fpdfCorner, "1234", "D")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(x+fpdfLabelInset, y+9, tr(doc.Title))

	lineY := y + 18
	for _, f := range doc.Fields {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Text(x+fpdfLabelInset, lineY, tr(f.Label+":"))
		pdf.SetFont("Helvetica", "", 11)
		pdf.Text(x+fpdfValueInset, lineY, tr(f.Value))
		lineY += fpdfLineGap
	}

	if pdf.Err() {
		return nil, fmt.Errorf("failed to lay out report: %w", pdf.Error())
	}

	boxBottom := y + boxH
	e.drawImage(pdf, doc.Image, x, boxW, lineY, boxBottom)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// drawImage embeds the image below the table; any failure leaves the page without it.
func (e *FPDFEngine) drawImage(pdf *fpdf.Fpdf, data []byte, x, boxW, top, boxBottom float64) {
	cfg, format, ok := probeImage(data)
	if !ok {
		return
	}
	imageType := strings.ToUpper(format)
	if imageType == "JPEG" {
		imageType = "JPG"
	}

	maxW := boxW - 2*fpdfLabelInset
	maxH := boxBottom - fpdfImagePad - top
	w, h := fitImage(float64(cfg.Width), float64(cfg.Height), maxW, maxH)
	if w <= 0 || h <= 0 {
		return
	}

	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader("meter-image", opts, bytes.NewReader(data))
	if pdf.Err() {
		pdf.ClearError()
		return
	}
	pdf.ImageOptions("meter-image", x+(boxW-w)/2, boxBottom-fpdfImagePad-h, w, h, false, opts, 0, "")
	if pdf.Err() {
		pdf.ClearError()
	}
}
