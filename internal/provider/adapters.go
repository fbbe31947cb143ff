package provider

import (
	"context"
	"strings"

	"github.com/sells-group/evidence-cli/pkg/anthropic"
	"github.com/sells-group/evidence-cli/pkg/gemini"
	"github.com/sells-group/evidence-cli/pkg/openai"
)

const defaultMaxTokens = 4096

func maxTokens(n int64) int64 {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

// Anthropic generates text with the Messages API. The system prompt is sent
// as a cached block since it repeats across every document in a batch.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic generator.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens(req.MaxTokens),
		System:    anthropic.BuildCachedSystemBlocks(req.System),
		Messages:  []anthropic.Message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(a.model, req.Phase)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// OpenAI generates text with Chat Completions.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI generator.
func NewOpenAI(client openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:     o.model,
		System:    req.System,
		User:      req.Prompt,
		MaxTokens: maxTokens(req.MaxTokens),
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(o.model, req.Phase)

	if strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:         resp.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Gemini generates text with generateContent.
type Gemini struct {
	client gemini.Client
	model  string
}

// NewGemini creates a Gemini generator.
func NewGemini(client gemini.Client, model string) *Gemini {
	return &Gemini{client: client, model: model}
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:     g.model,
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: int32(maxTokens(req.MaxTokens)),
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(g.model, req.Phase)

	if strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CandidateTokens,
	}, nil
}
