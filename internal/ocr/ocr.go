// Package ocr extracts plain text from PDF documents.
package ocr

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/config"
)

// ErrNoText is returned when a PDF has no extractable text layer, which is
// typical of scanned documents.
var ErrNoText = eris.New("ocr: no text layer")

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath,
		WithMaxPages(cfg.MaxPages),
		WithTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
	)
}
