// Package provider adapts the Anthropic, OpenAI and Gemini clients to a
// single text Generator and guards calls with rate limiting, retries and a
// circuit breaker.
package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
	"github.com/sells-group/evidence-cli/pkg/gemini"
	"github.com/sells-group/evidence-cli/pkg/openai"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = eris.New("provider: empty response")

// Request is one single-turn generation.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
	// Phase labels cost attribution logs ("detailed", "concise", "synthesis").
	Phase string
}

// Response is the generated text and its token usage.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// New builds the Generator selected by cfg.Provider.Name, wrapped in Guarded.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Generator, error) {
	var gen Generator
	switch cfg.Provider.Name {
	case "anthropic":
		gen = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	case "openai":
		gen = NewOpenAI(openai.NewClient(cfg.OpenAI.Key), cfg.OpenAI.Model)
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, eris.Wrap(err, "provider: gemini")
		}
		gen = NewGemini(client, cfg.Gemini.Model)
	default:
		return nil, eris.Errorf("provider: unknown provider %q", cfg.Provider.Name)
	}
	return NewGuarded(cfg.Provider.Name, gen, cfg.Provider, m), nil
}
