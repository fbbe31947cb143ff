package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/resilience"
)

// Guarded wraps a Generator with an adaptive rate limiter, retries of
// transient errors and a circuit breaker. Only transient errors count
// against the breaker.
type Guarded struct {
	name    string
	next    Generator
	limiter *AdaptiveLimiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
}

// NewGuarded wraps next using the provider settings in cfg. m may be nil.
func NewGuarded(name string, next Generator, cfg config.ProviderConfig, m *metrics.Metrics) *Guarded {
	retry := resilience.RetryFromConfig(cfg.Retry)
	retry.OnRetry = resilience.RetryLogger(name, "generate")

	circuit := resilience.CircuitFromConfig(cfg.Circuit)
	circuit.ShouldTrip = resilience.IsTransient
	circuit.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("provider circuit state changed",
			zap.String("provider", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		m.SetCircuitState(name, int(to))
	}

	return &Guarded{
		name:    name,
		next:    next,
		limiter: NewAdaptiveLimiter(cfg.RequestsPerMinute),
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(circuit),
		metrics: m,
	}
}

// Generate implements Generator.
func (g *Guarded) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Response, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "provider: rate limiter")
		}
		resp, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*Response, error) {
			return g.next.Generate(ctx, req)
		})
		g.adapt(err)
		return resp, err
	})

	g.metrics.ObserveProviderCall(g.name, err == nil, time.Since(start))
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s generate", g.name)
	}

	zap.L().Debug("provider: generated",
		zap.String("provider", g.name),
		zap.String("model", resp.Model),
		zap.String("phase", req.Phase),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// State reports the breaker state.
func (g *Guarded) State() resilience.CircuitState {
	return g.breaker.State()
}

func (g *Guarded) adapt(err error) {
	if err == nil {
		g.limiter.OnSuccess()
		return
	}
	var te *resilience.TransientError
	if errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests {
		g.limiter.OnRateLimit()
	}
}
