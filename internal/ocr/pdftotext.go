package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Option configures a PdfToText extractor.
type Option func(*PdfToText)

// WithMaxPages stops extraction after n pages. Zero reads the whole file.
func WithMaxPages(n int) Option {
	return func(p *PdfToText) { p.maxPages = max(n, 0) }
}

// WithTimeout bounds a single extraction. Zero leaves only the caller's
// context in charge.
func WithTimeout(d time.Duration) Option {
	return func(p *PdfToText) { p.timeout = max(d, 0) }
}

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath  string
	maxPages int
	timeout  time.Duration
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string, opts ...Option) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	p := &PdfToText{binPath: binPath}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *PdfToText) args(pdfPath string) []string {
	args := []string{"-layout", "-enc", "UTF-8"}
	if p.maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.maxPages))
	}
	return append(args, pdfPath, "-")
}

// ExtractText runs pdftotext in UTF-8 layout mode on the given PDF and
// returns stdout. Whitespace-only output yields ErrNoText.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.binPath, p.args(pdfPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrapf(ctx.Err(), "ocr: pdftotext failed for %s", pdfPath)
		}
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, strings.TrimSpace(stderr.String()))
	}

	text := stdout.String()
	if strings.TrimSpace(text) == "" {
		return "", eris.Wrapf(ErrNoText, "ocr: %s", pdfPath)
	}

	zap.L().Debug("ocr: extracted pdf text",
		zap.String("path", pdfPath),
		zap.Int("bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
