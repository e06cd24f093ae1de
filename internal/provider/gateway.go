package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"inboxagent/internal/domain"
	"inboxagent/internal/metrics"
)

// Gateway is the single entry point the rest of the application uses to talk
// to an LLM. It wraps a provider with a per-call deadline, error
// classification, and latency metrics. It never retries and never parses
// model output; callers own both.
type Gateway struct {
	provider domain.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGateway wraps the given provider. A timeout of zero defaults to 90s;
// generation calls can legitimately take tens of seconds.
func NewGateway(p domain.Provider, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Gateway{provider: p, timeout: timeout, logger: logger}
}

// Invoke sends a single prompt to the underlying provider and returns the raw
// response text. When expectJSON is set the provider is asked for structured
// output, but the returned text is passed through verbatim either way.
func (g *Gateway) Invoke(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	metrics.LLMRequestsTotal.Inc()
	start := time.Now()

	resp, err := g.provider.Generate(ctx, domain.GenerateRequest{
		Prompt:     prompt,
		ExpectJSON: expectJSON,
	})

	elapsed := time.Since(start)
	metrics.LLMLatency.Observe(elapsed.Seconds())

	if err != nil {
		metrics.LLMFailures.Inc()
		gerr := g.classify(err)
		g.logger.Warn("gateway: provider call failed",
			"provider", g.provider.Name(),
			"kind", string(gerr.Kind),
			"elapsed", elapsed.Round(time.Millisecond),
			"error", err,
		)
		return "", gerr
	}

	g.logger.Debug("gateway: provider call ok",
		"provider", g.provider.Name(),
		"elapsed", elapsed.Round(time.Millisecond),
		"tokens", resp.Usage.TotalTokens,
	)
	return resp.Text, nil
}

// Healthy reports whether the underlying provider is reachable.
func (g *Gateway) Healthy(ctx context.Context) error {
	return g.provider.Healthy(ctx)
}

// ProviderName returns the name of the wrapped provider.
func (g *Gateway) ProviderName() string {
	return g.provider.Name()
}

// classify maps arbitrary provider errors into the gateway taxonomy. Typed
// errors from providers pass through; transport-level failures become
// timeout or unavailable.
func (g *Gateway) classify(err error) *domain.GatewayError {
	var gerr *domain.GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.GatewayError{
			Kind:   domain.ErrKindTimeout,
			Detail: g.provider.Name() + ": deadline exceeded",
			Err:    err,
		}
	}
	return &domain.GatewayError{
		Kind:   domain.ErrKindUnavailable,
		Detail: g.provider.Name() + ": " + err.Error(),
		Err:    err,
	}
}
