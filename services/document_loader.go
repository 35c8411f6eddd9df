package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"document-chat-platform/internal/config"
	"document-chat-platform/models"
	"document-chat-platform/utils"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrTooLarge          = errors.New("document exceeds maximum upload size")
	ErrEmptyDocument     = errors.New("document contains no pages")
	ErrUnreadable        = errors.New("document is unreadable or corrupt")
)

// DocumentLoader validates uploads and normalizes them into encoded
// page images. PDFs are rasterized page by page; direct images are
// passed through or re-encoded. Nothing is persisted; the returned
// Document is the only side effect.
type DocumentLoader struct {
	maxFileSize int64
	renderDPI   float64
	jpegQuality int
}

// NewDocumentLoader creates a loader from configuration
func NewDocumentLoader(cfg *config.Config) *DocumentLoader {
	return &DocumentLoader{
		maxFileSize: cfg.MaxFileSize,
		renderDPI:   cfg.RenderDPI,
		jpegQuality: cfg.JPEGQuality,
	}
}

// Load validates the uploaded bytes and returns a normalized Document
func (l *DocumentLoader) Load(data []byte, filename string) (*models.Document, error) {
	format, ok := utils.FormatFromFilename(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadable)
	}

	if int64(len(data)) > l.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), l.maxFileSize)
	}

	if !utils.SniffMatchesFormat(data, format) {
		return nil, fmt.Errorf("%w: content does not match %s", ErrUnreadable, format)
	}

	var pages []models.PageImage
	var err error

	if format == models.FormatPDF {
		pages, err = l.rasterizePDF(data)
	} else {
		pages, err = l.normalizeImage(data, format)
	}
	if err != nil {
		return nil, err
	}

	return &models.Document{
		Filename:   filename,
		Format:     format,
		Size:       int64(len(data)),
		Pages:      pages,
		UploadedAt: time.Now(),
	}, nil
}

// rasterizePDF renders each PDF page into an independent PNG at the
// configured resolution, preserving page order
func (l *DocumentLoader) rasterizePDF(data []byte) ([]models.PageImage, error) {
	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if pageCount == 0 {
		return nil, ErrEmptyDocument
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	pages := make([]models.PageImage, 0, pageCount)
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		img, err := doc.ImageDPI(pageNum, l.renderDPI)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, pageNum+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, pageNum+1, err)
		}

		pages = append(pages, models.PageImage{
			Number:   pageNum + 1,
			Data:     buf.Bytes(),
			MIMEType: "image/png",
		})
	}

	return pages, nil
}

// normalizeImage validates a direct image upload. PNGs pass through
// unchanged; JPEGs are re-encoded at the configured quality for
// transport efficiency.
func (l *DocumentLoader) normalizeImage(data []byte, format models.DocumentFormat) ([]models.PageImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	encoded := data
	if format == models.FormatJPG || format == models.FormatJPEG {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: l.jpegQuality}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		encoded = buf.Bytes()
	}

	return []models.PageImage{
		{
			Number:   1,
			Data:     encoded,
			MIMEType: utils.MIMEForFormat(format),
		},
	}, nil
}
