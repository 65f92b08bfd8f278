// Package report renders the one-page meter summary PDF.
package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/meter-dashboard/internal/meter"
	"go.uber.org/zap"
)

const (
	// Title heads every meter report
	Title = "Meter Details"
	// TimeLayout formats Created/Updated timestamps
	TimeLayout = "2006-01-02 15:04 UTC"
)

// Field is one label/value row of the report table
type Field struct {
	Label string
	Value string
}

// Document is the engine-independent content of a report
type Document struct {
	Title  string
	Fields []Field
	Image  []byte
}

// NewDocument lays out a meter as a report document. image may be nil.
func NewDocument(m meter.Meter, image []byte) Document {
	return Document{
		Title: Title,
		Fields: []Field{
			{Label: "Meter ID", Value: orDash(m.MeterID)},
			{Label: "Consumer ID", Value: orDash(m.ConsumerID)},
			{Label: "Value", Value: strconv.FormatFloat(m.Value, 'f', -1, 64)},
			{Label: "Created", Value: formatTime(m.CreatedAt)},
			{Label: "Updated", Value: formatTime(m.UpdatedAt)},
		},
		Image: image,
	}
}

// Filename is the download name for a meter's report
func Filename(m meter.Meter) string {
	id := m.MeterID
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("meter_%s.pdf", strings.ReplaceAll(id, "/", "_"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(TimeLayout)
}

// Engine renders a Document to PDF bytes
type Engine interface {
	Name() string
	Render(doc Document) ([]byte, error)
}

// Builder renders reports with the first engine that succeeds
type Builder struct {
	engines []Engine
	logger  *zap.Logger
}

// NewBuilder creates a report builder trying engines in order
func NewBuilder(logger *zap.Logger, engines ...Engine) *Builder {
	return &Builder{engines: engines, logger: logger}
}

// Render produces the report for m. Image problems never fail the render;
// a *meter.RenderError is returned only when every engine fails.
func (b *Builder) Render(m meter.Meter, image []byte) ([]byte, error) {
	doc := NewDocument(m, image)

	var errs []error
	for _, engine := range b.engines {
		out, err := renderSafely(engine, doc)
		if err == nil {
			return out, nil
		}
		b.logger.Warn("report engine failed",
			zap.String("engine", engine.Name()),
			zap.String("meter_id", m.MeterID),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
	}

	return nil, &meter.RenderError{Errors: errs}
}

func renderSafely(engine Engine, doc Document) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()
	out, err = engine.Render(doc)
	if err == nil && len(out) == 0 {
		err = fmt.Errorf("engine produced an empty document")
	}
	return out, err
}

// EnginesByName resolves a configured engine order such as ["fpdf", "basic"]
func EnginesByName(names []string) ([]Engine, error) {
	var engines []Engine
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case FPDFEngineName:
			engines = append(engines, NewFPDFEngine())
		case BasicEngineName:
			engines = append(engines, NewBasicEngine())
		default:
			return nil, fmt.Errorf("unknown report engine %q", name)
		}
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no report engine configured")
	}
	return engines, nil
}

// probeImage decodes only the image header; ok is false for absent or undecodable data.
func probeImage(data []byte) (cfg image.Config, format string, ok bool) {
	if len(data) == 0 {
		return image.Config{}, "", false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", false
	}
	return cfg, format, true
}

// fitImage scales iw x ih into maxW x maxH preserving aspect ratio.
func fitImage(iw, ih, maxW, maxH float64) (w, h float64) {
	if iw <= 0 || ih <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	ratio := maxW / iw
	if r := maxH / ih; r < ratio {
		ratio = r
	}
	return iw * ratio, ih * ratio
}
