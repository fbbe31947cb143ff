// Package document loads submitted files as normalized text and recovers
// bibliographic metadata from them.
package document

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/ocr"
)

// ErrEmpty is returned when a document yields no text.
var ErrEmpty = eris.New("document: no text content")

// Content is the loaded, normalized text of one document.
type Content struct {
	Document  model.Document
	Text      string
	Truncated bool
	Metadata  Metadata
}

// Loader reads documents from disk, running PDFs through an ocr.Extractor.
type Loader struct {
	extractor ocr.Extractor
	maxChars  int
}

// NewLoader creates a Loader. A non-positive MaxChars disables truncation.
func NewLoader(extractor ocr.Extractor, cfg config.DocumentConfig) *Loader {
	return &Loader{extractor: extractor, maxChars: cfg.MaxChars}
}

// Load extracts, normalizes and truncates the document text. Metadata is
// taken from the full text so trailing reference lists survive truncation.
func (l *Loader) Load(ctx context.Context, doc model.Document) (*Content, error) {
	raw, err := l.read(ctx, doc)
	if err != nil {
		return nil, err
	}

	text := Normalize(raw)
	if strings.TrimSpace(text) == "" {
		return nil, eris.Wrapf(ErrEmpty, "document: %s", doc.Name)
	}

	c := &Content{
		Document: doc,
		Metadata: ExtractMetadata(text),
	}
	c.Text, c.Truncated = truncateRunes(text, l.maxChars)

	zap.L().Debug("document: loaded",
		zap.String("document", doc.Name),
		zap.Int("chars", utf8.RuneCountInString(c.Text)),
		zap.Bool("truncated", c.Truncated),
		zap.Int("dois", len(c.Metadata.DOIs)),
	)
	return c, nil
}

func (l *Loader) read(ctx context.Context, doc model.Document) (string, error) {
	if doc.IsPDF() {
		text, err := l.extractor.ExtractText(ctx, doc.Path)
		if err != nil {
			return "", eris.Wrapf(err, "document: extract %s", doc.Name)
		}
		return text, nil
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", eris.Wrapf(err, "document: read %s", doc.Name)
	}
	return string(data), nil
}

// Normalize repairs invalid UTF-8, folds compatibility characters such as
// PDF ligatures with NFKC and unifies line endings.
func Normalize(raw string) string {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "\uFFFD")
	}
	text := norm.NFKC.String(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\x00", "")
}

func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}
