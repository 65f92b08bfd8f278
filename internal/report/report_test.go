package report

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-dashboard/internal/meter"
	"go.uber.org/zap"
)

func testMeter() meter.Meter {
	at := time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)
	return meter.Meter{
		ID:         uuid.New(),
		MeterID:    "MTR-001",
		ConsumerID: "CSM-1001",
		Value:      245.5,
		CreatedAt:  at,
		UpdatedAt:  at.Add(90 * time.Minute),
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestNewDocument_Fields(t *testing.T) {
	doc := NewDocument(testMeter(), nil)

	if doc.Title != "Meter Details" {
		t.Errorf("Expected title 'Meter Details', got '%s'", doc.Title)
	}
	expected := []Field{
		{"Meter ID", "MTR-001"},
		{"Consumer ID", "CSM-1001"},
		{"Value", "245.5"},
		{"Created", "2025-12-29 10:30 UTC"},
		{"Updated", "2025-12-29 12:00 UTC"},
	}
	if len(doc.Fields) != len(expected) {
		t.Fatalf("Expected %d fields, got %d", len(expected), len(doc.Fields))
	}
	for i, f := range expected {
		if doc.Fields[i] != f {
			t.Errorf("Field %d: expected %+v, got %+v", i, f, doc.Fields[i])
		}
	}
}

func TestNewDocument_MissingTimestamps(t *testing.T) {
	doc := NewDocument(meter.Meter{}, nil)
	if doc.Fields[0].Value != "-" || doc.Fields[3].Value != "-" {
		t.Errorf("Expected dashes for empty values, got %+v", doc.Fields)
	}
}

func TestFilename(t *testing.T) {
	if name := Filename(testMeter()); name != "meter_MTR-001.pdf" {
		t.Errorf("Expected 'meter_MTR-001.pdf', got '%s'", name)
	}
	if name := Filename(meter.Meter{}); name != "meter_unknown.pdf" {
		t.Errorf("Expected 'meter_unknown.pdf', got '%s'", name)
	}
}

func TestFitImage_PreservesAspectRatio(t *testing.T) {
	w, h := fitImage(400, 200, 100, 100)
	if w != 100 || h != 50 {
		t.Errorf("Expected 100x50, got %vx%v", w, h)
	}
	w, h = fitImage(100, 400, 300, 200)
	if w != 50 || h != 200 {
		t.Errorf("Expected 50x200, got %vx%v", w, h)
	}
}

func assertPDF(t *testing.T, out []byte) {
	t.Helper()
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("Expected PDF header, got %q", out[:min(len(out), 16)])
	}
	if !bytes.Contains(out, []byte("%%EOF")) {
		t.Error("Expected PDF trailer")
	}
}

func TestEngines_RenderWithoutImage(t *testing.T) {
	for _, engine := range []Engine{NewFPDFEngine(), NewBasicEngine()} {
		out, err := engine.Render(NewDocument(testMeter(), nil))
		if err != nil {
			t.Fatalf("%s: failed to render: %v", engine.Name(), err)
		}
		assertPDF(t, out)
	}
}

func TestEngines_RenderWithImages(t *testing.T) {
	images := map[string][]byte{
		"png":  testPNG(t, 40, 20),
		"jpeg": testJPEG(t, 20, 40),
	}
	for _, engine := range []Engine{NewFPDFEngine(), NewBasicEngine()} {
		for name, img := range images {
			out, err := engine.Render(NewDocument(testMeter(), img))
			if err != nil {
				t.Fatalf("%s/%s: failed to render: %v", engine.Name(), name, err)
			}
			assertPDF(t, out)
		}
	}
}

func TestEngines_UndecodableImageIsDropped(t *testing.T) {
	garbage := []byte("definitely not an image")
	for _, engine := range []Engine{NewFPDFEngine(), NewBasicEngine()} {
		out, err := engine.Render(NewDocument(testMeter(), garbage))
		if err != nil {
			t.Fatalf("%s: expected render to succeed without image, got %v", engine.Name(), err)
		}
		assertPDF(t, out)
	}
}

func TestBasicEngine_EmbedsImagesAsJPEG(t *testing.T) {
	engine := NewBasicEngine()

	plain, err := engine.Render(NewDocument(testMeter(), nil))
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	if bytes.Contains(plain, []byte("/DCTDecode")) {
		t.Error("Expected no image stream without image bytes")
	}

	var gifBuf bytes.Buffer
	if err := gif.Encode(&gifBuf, image.NewPaletted(image.Rect(0, 0, 12, 9), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatalf("Failed to encode gif: %v", err)
	}

	images := map[string][]byte{
		"png":  testPNG(t, 40, 20),
		"jpeg": testJPEG(t, 20, 40),
		"gif":  gifBuf.Bytes(),
	}
	for name, img := range images {
		out, err := engine.Render(NewDocument(testMeter(), img))
		if err != nil {
			t.Fatalf("%s: failed to render: %v", name, err)
		}
		assertPDF(t, out)
		if !bytes.Contains(out, []byte("/DCTDecode")) {
			t.Errorf("%s: expected embedded JPEG stream", name)
		}
		if len(out) <= len(plain) {
			t.Errorf("%s: expected output larger than %d bytes, got %d", name, len(plain), len(out))
		}
	}
}

func TestFlattenToJPEG(t *testing.T) {
	out, err := flattenToJPEG(testPNG(t, 10, 5))
	if err != nil {
		t.Fatalf("Failed to flatten: %v", err)
	}
	cfg, format, ok := probeImage(out)
	if !ok || format != "jpeg" || cfg.Width != 10 || cfg.Height != 5 {
		t.Errorf("Expected 10x5 jpeg, got %dx%d %s", cfg.Width, cfg.Height, format)
	}

	if _, err := flattenToJPEG([]byte("nope")); err == nil {
		t.Error("Expected error for undecodable data")
	}
}

type failingEngine struct{ panics bool }

func (f failingEngine) Name() string { return "failing" }

func (f failingEngine) Render(Document) ([]byte, error) {
	if f.panics {
		panic("boom")
	}
	return nil, errors.New("engine unavailable")
}

func TestBuilder_FallsBackToSecondEngine(t *testing.T) {
	b := NewBuilder(zap.NewNop(), failingEngine{panics: true}, NewBasicEngine())

	out, err := b.Render(testMeter(), nil)
	if err != nil {
		t.Fatalf("Expected fallback engine to succeed, got %v", err)
	}
	assertPDF(t, out)
}

func TestBuilder_AllEnginesFail(t *testing.T) {
	b := NewBuilder(zap.NewNop(), failingEngine{}, failingEngine{panics: true})

	_, err := b.Render(testMeter(), nil)

	var rerr *meter.RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected RenderError, got %v", err)
	}
	if len(rerr.Errors) != 2 {
		t.Errorf("Expected 2 engine errors, got %d", len(rerr.Errors))
	}
	if !strings.Contains(err.Error(), "engine unavailable") || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Expected message to name both failures, got '%s'", err.Error())
	}
}

func TestBuilder_NoEngines(t *testing.T) {
	_, err := NewBuilder(zap.NewNop()).Render(testMeter(), nil)
	var rerr *meter.RenderError
	if !errors.As(err, &rerr) {
		t.Errorf("Expected RenderError, got %v", err)
	}
}

func TestEnginesByName(t *testing.T) {
	engines, err := EnginesByName([]string{"fpdf", " basic "})
	if err != nil {
		t.Fatalf("Failed to resolve engines: %v", err)
	}
	if len(engines) != 2 || engines[0].Name() != FPDFEngineName || engines[1].Name() != BasicEngineName {
		t.Errorf("Unexpected engines: %v", engines)
	}
	if _, err := EnginesByName([]string{"reportlab"}); err == nil {
		t.Error("Expected error for unknown engine")
	}
	if _, err := EnginesByName(nil); err == nil {
		t.Error("Expected error for empty engine list")
	}
}
