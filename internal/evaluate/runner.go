// Package evaluate runs single-document evaluations and cross-document
// synthesis against a provider.Generator and normalizes their citations.
package evaluate

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/citation"
	"github.com/sells-group/evidence-cli/internal/document"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/provider"
)

// ErrNoSuccessfulDocuments is the synthesis error when no concise
// evaluation succeeded.
var ErrNoSuccessfulDocuments = eris.New("failed to evaluate any of the documents")

// DocumentLoader loads a document as normalized text.
type DocumentLoader interface {
	Load(ctx context.Context, doc model.Document) (*document.Content, error)
}

// Runner evaluates documents and synthesizes their results. It holds no
// mutable state and is safe for concurrent use.
type Runner struct {
	loader     DocumentLoader
	gen        provider.Generator
	normalizer *citation.Normalizer
	prompts    *Prompts
	maxTokens  int64
}

// NewRunner creates a Runner. maxTokens bounds each generation.
func NewRunner(loader DocumentLoader, gen provider.Generator, normalizer *citation.Normalizer, prompts *Prompts, maxTokens int64) *Runner {
	return &Runner{
		loader:     loader,
		gen:        gen,
		normalizer: normalizer,
		prompts:    prompts,
		maxTokens:  maxTokens,
	}
}

// Evaluate runs one mode against one document. Failures are reported in the
// result rather than returned.
func (r *Runner) Evaluate(ctx context.Context, doc model.Document, mode model.Mode) model.EvaluationResult {
	start := time.Now()
	log := zap.L().With(zap.String("document", doc.Name), zap.String("mode", string(mode)))

	content, err := r.loader.Load(ctx, doc)
	if err != nil {
		log.Warn("evaluate: load failed", zap.Error(err))
		return model.Failed(err.Error())
	}

	prompt, err := r.prompts.RenderDocument(mode == model.ModeDetailed, DocumentData{
		Name:      doc.Name,
		Title:     content.Metadata.Title,
		Authors:   content.Metadata.Authors,
		Year:      content.Metadata.Year,
		DOIs:      content.Metadata.DOIs,
		URLs:      content.Metadata.URLs,
		Content:   content.Text,
		Truncated: content.Truncated,
	})
	if err != nil {
		log.Error("evaluate: render prompt failed", zap.Error(err))
		return model.Failed(err.Error())
	}

	resp, err := r.gen.Generate(ctx, provider.Request{
		System:    r.prompts.System,
		Prompt:    prompt,
		MaxTokens: r.maxTokens,
		Phase:     string(mode),
	})
	if err != nil {
		log.Warn("evaluate: generation failed", zap.Error(err))
		return model.Failed(err.Error())
	}

	text := r.normalizer.Normalize(resp.Text, content.Metadata.DOIs)
	log.Info("evaluate: document evaluated",
		zap.Int("dois", len(content.Metadata.DOIs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return model.EvaluationResult{Text: text, Success: true}
}

// Synthesize consolidates the successful concise evaluations in results.
// Documents whose concise evaluation failed are skipped; when none
// succeeded no provider call is made.
func (r *Runner) Synthesize(ctx context.Context, results []model.DocumentResult) model.EvaluationResult {
	var evals []NamedEvaluation
	for _, res := range results {
		if res.Concise.Success {
			evals = append(evals, NamedEvaluation{Name: res.Document.Name, Text: res.Concise.Text})
		}
	}
	if len(evals) == 0 {
		return model.Failed(ErrNoSuccessfulDocuments.Error())
	}

	ids := r.mentionedIDs(evals)
	prompt, err := r.prompts.RenderSynthesis(SynthesisData{DOIs: ids, Evaluations: evals})
	if err != nil {
		zap.L().Error("evaluate: render synthesis prompt failed", zap.Error(err))
		return model.Failed(err.Error())
	}

	resp, err := r.gen.Generate(ctx, provider.Request{
		System:    r.prompts.SynthesisSystem,
		Prompt:    prompt,
		MaxTokens: r.maxTokens,
		Phase:     "synthesis",
	})
	if err != nil {
		zap.L().Warn("evaluate: synthesis failed", zap.Int("documents", len(evals)), zap.Error(err))
		return model.Failed(err.Error())
	}

	zap.L().Info("evaluate: synthesis complete",
		zap.Int("documents", len(evals)),
		zap.Int("skipped", len(results)-len(evals)),
		zap.Int("dois", len(ids)),
	)
	return model.EvaluationResult{Text: r.normalizer.Normalize(resp.Text, ids), Success: true}
}

// mentionedIDs collects labeled identifiers across evaluations in order of
// first appearance.
func (r *Runner) mentionedIDs(evals []NamedEvaluation) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, e := range evals {
		for _, id := range r.normalizer.Mentions(e.Text) {
			key := strings.ToLower(id)
			if seen[key] {
				continue
			}
			seen[key] = true
			ids = append(ids, id)
		}
	}
	return ids
}
