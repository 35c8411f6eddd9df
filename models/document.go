package models

import (
	"time"
)

// DocumentFormat is the declared format of an uploaded document
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatPNG  DocumentFormat = "png"
	FormatJPG  DocumentFormat = "jpg"
	FormatJPEG DocumentFormat = "jpeg"
)

// PageImage is one encoded image representation of a document page.
// PDFs produce one entry per page in page order; direct images produce
// exactly one entry.
type PageImage struct {
	Number   int    `json:"number"`
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// Document is a normalized uploaded file, immutable once loaded
type Document struct {
	Filename   string         `json:"filename"`
	Format     DocumentFormat `json:"format"`
	Size       int64          `json:"size"`
	Pages      []PageImage    `json:"pages"`
	UploadedAt time.Time      `json:"uploaded_at"`
}

// PageCount returns the number of image representations
func (d *Document) PageCount() int {
	return len(d.Pages)
}
