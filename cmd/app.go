package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/citation"
	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/document"
	"github.com/sells-group/evidence-cli/internal/evaluate"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/ocr"
	"github.com/sells-group/evidence-cli/internal/provider"
	"github.com/sells-group/evidence-cli/internal/queue"
)

// appEnv holds the evaluation stack shared by serve and evaluate.
type appEnv struct {
	Metrics    *metrics.Metrics
	Normalizer *citation.Normalizer
	Runner     *evaluate.Runner
	Queue      *queue.Queue
}

// initApp validates config and builds provider, runner and queue. Extra
// queue options are appended after metrics.
func initApp(ctx context.Context, c *config.Config, opts ...queue.Option) (*appEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	m := metrics.New()

	gen, err := provider.New(ctx, c, m)
	if err != nil {
		return nil, eris.Wrap(err, "init provider")
	}

	prompts, err := evaluate.LoadPrompts(c.Prompts)
	if err != nil {
		return nil, eris.Wrap(err, "load prompts")
	}

	normalizer := newNormalizer(c)
	loader := document.NewLoader(ocr.NewExtractor(c.OCR), c.Document)
	runner := evaluate.NewRunner(loader, gen, normalizer, prompts, c.Provider.MaxTokens)

	q := queue.New(runner, c.Queue, append([]queue.Option{queue.WithMetrics(m)}, opts...)...)

	zap.L().Info("evaluation stack ready",
		zap.String("provider", c.Provider.Name),
		zap.Int("requests_per_minute", c.Provider.RequestsPerMinute),
	)

	return &appEnv{
		Metrics:    m,
		Normalizer: normalizer,
		Runner:     runner,
		Queue:      q,
	}, nil
}

// Close stops the queue drain goroutine.
func (e *appEnv) Close() {
	e.Queue.Close()
}

func newNormalizer(c *config.Config) *citation.Normalizer {
	return citation.New(c.Citation.ResolverBaseURL, c.Citation.Label)
}
