package services

import (
	"context"
	"fmt"
	"strings"

	"document-chat-platform/internal/logger"
	"document-chat-platform/models"
)

// VisionAnalyzer is the capability the analysis pipeline needs from
// the remote vision model. Keeping it narrow lets a retry or backoff
// policy be layered outside without touching this code.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, data []byte, format, instruction string) (string, error)
}

// AnalysisService extracts document content by sending page images to
// the vision model
type AnalysisService struct {
	analyzer VisionAnalyzer
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(analyzer VisionAnalyzer) *AnalysisService {
	return &AnalysisService{analyzer: analyzer}
}

// AnalyzeDocument sends each page image to the vision model in page
// order and concatenates the per-page extractions. Multi-page output
// carries "Page N:" headers separated by blank lines. Every call
// re-invokes the remote model; there is no memoization.
func (s *AnalysisService) AnalyzeDocument(ctx context.Context, doc *models.Document) (string, error) {
	if doc == nil || doc.PageCount() == 0 {
		return "", ErrEmptyDocument
	}

	if doc.PageCount() == 1 {
		return s.analyzer.AnalyzeImage(ctx, doc.Pages[0].Data, sdkImageFormat(doc.Pages[0].MIMEType), VisionInstruction)
	}

	sections := make([]string, 0, doc.PageCount())
	for _, page := range doc.Pages {
		text, err := s.analyzer.AnalyzeImage(ctx, page.Data, sdkImageFormat(page.MIMEType), VisionInstruction)
		if err != nil {
			return "", fmt.Errorf("page %d analysis failed: %w", page.Number, err)
		}

		logger.Debug("Page analyzed", "page", page.Number, "chars", len(text))
		sections = append(sections, fmt.Sprintf("Page %d:\n%s", page.Number, text))
	}

	return strings.Join(sections, "\n\n"), nil
}

// sdkImageFormat maps a MIME type to the bare format name the SDK's
// inline image part expects
func sdkImageFormat(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpeg"
	default:
		return "png"
	}
}
