package utils

import (
	"net/http"
	"path/filepath"
	"strings"

	"document-chat-platform/models"
)

// FormatFromFilename maps a filename extension to a document format.
// Returns false for anything outside the supported set.
func FormatFromFilename(filename string) (models.DocumentFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return models.FormatPDF, true
	case ".png":
		return models.FormatPNG, true
	case ".jpg":
		return models.FormatJPG, true
	case ".jpeg":
		return models.FormatJPEG, true
	default:
		return "", false
	}
}

// SniffMatchesFormat verifies that the file content plausibly matches
// the declared format. A mismatch means the upload is either corrupt
// or mislabeled.
func SniffMatchesFormat(data []byte, format models.DocumentFormat) bool {
	contentType := http.DetectContentType(data)
	switch format {
	case models.FormatPDF:
		return contentType == "application/pdf"
	case models.FormatPNG:
		return contentType == "image/png"
	case models.FormatJPG, models.FormatJPEG:
		return contentType == "image/jpeg"
	default:
		return false
	}
}

// MIMEForFormat returns the transport MIME type for a document format
func MIMEForFormat(format models.DocumentFormat) string {
	switch format {
	case models.FormatPNG:
		return "image/png"
	case models.FormatJPG, models.FormatJPEG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
