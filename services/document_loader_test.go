package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"document-chat-platform/internal/config"
	"document-chat-platform/models"
)

func testLoaderConfig() *config.Config {
	return &config.Config{
		MaxFileSize: 10 * 1024 * 1024,
		RenderDPI:   72,
		JPEGQuality: 85,
	}
}

func makeImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

func makePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, makeImage()); err != nil {
		t.Fatalf("encoding png fixture: %v", err)
	}
	return buf.Bytes()
}

func makeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, makeImage(), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

// makePDF builds a valid minimal PDF with the given number of blank
// pages, tracking byte offsets so the xref table is correct.
func makePDF(t *testing.T, pageCount int) []byte {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int

	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")
	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := ""
	for i := 0; i < pageCount; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [ %s] /Count %d >>\nendobj\n", kids, pageCount))

	for i := 0; i < pageCount; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>\nendobj\n", 3+i))
	}

	xrefPos := buf.Len()
	size := len(offsets) + 1
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", size))
	for _, off := range offsets {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xrefPos))

	return buf.Bytes()
}

func TestLoadPNG(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	doc, err := loader.Load(makePNG(t), "scan.png")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if doc.Format != models.FormatPNG {
		t.Fatalf("expected png format, got %s", doc.Format)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("expected 1 page, got %d", doc.PageCount())
	}
	if doc.Pages[0].MIMEType != "image/png" {
		t.Fatalf("unexpected mime type %q", doc.Pages[0].MIMEType)
	}
}

func TestLoadJPEGReencodes(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	doc, err := loader.Load(makeJPEG(t), "photo.jpg")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if doc.PageCount() != 1 {
		t.Fatalf("expected 1 page, got %d", doc.PageCount())
	}
	if doc.Pages[0].MIMEType != "image/jpeg" {
		t.Fatalf("unexpected mime type %q", doc.Pages[0].MIMEType)
	}

	// Re-encoded output must itself decode cleanly
	if _, err := jpeg.Decode(bytes.NewReader(doc.Pages[0].Data)); err != nil {
		t.Fatalf("re-encoded jpeg does not decode: %v", err)
	}
}

func TestLoadPDFMultiPage(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	doc, err := loader.Load(makePDF(t, 3), "report.pdf")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if doc.Format != models.FormatPDF {
		t.Fatalf("expected pdf format, got %s", doc.Format)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}

	for i, page := range doc.Pages {
		if page.Number != i+1 {
			t.Fatalf("page %d has number %d, order not preserved", i, page.Number)
		}
		if page.MIMEType != "image/png" {
			t.Fatalf("page %d has mime %q, expected rasterized png", i+1, page.MIMEType)
		}
		if _, err := png.Decode(bytes.NewReader(page.Data)); err != nil {
			t.Fatalf("page %d does not decode as png: %v", i+1, err)
		}
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	for _, name := range []string{"notes.txt", "data.csv", "archive.zip", "noextension"} {
		if _, err := loader.Load([]byte("some content"), name); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestLoadZeroByteFile(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	if _, err := loader.Load([]byte{}, "empty.png"); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestLoadOversizedFile(t *testing.T) {
	cfg := testLoaderConfig()
	cfg.MaxFileSize = 64
	loader := NewDocumentLoader(cfg)

	if _, err := loader.Load(makePNG(t), "big.png"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestLoadContentMismatch(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	// PNG bytes declared as a PDF
	if _, err := loader.Load(makePNG(t), "fake.pdf"); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable for mismatched content, got %v", err)
	}
}

func TestLoadCorruptPDF(t *testing.T) {
	loader := NewDocumentLoader(testLoaderConfig())

	data := []byte("%PDF-1.4\ngarbage that is not a pdf body")
	if _, err := loader.Load(data, "broken.pdf"); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable for corrupt pdf, got %v", err)
	}
}
