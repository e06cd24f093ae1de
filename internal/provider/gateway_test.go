package provider

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"inboxagent/internal/domain"
)

// stubProvider returns canned responses or errors for gateway tests.
type stubProvider struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls int
}

func (s *stubProvider) Name() string                     { return s.name }
func (s *stubProvider) Models() []string                 { return []string{"stub-model"} }
func (s *stubProvider) Healthy(ctx context.Context) error { return s.err }

func (s *stubProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.GenerateResponse{Text: s.text}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// --- Invoke ---

func TestGateway_Invoke_ReturnsVerbatimText(t *testing.T) {
	p := &stubProvider{name: "stub", text: "  To-Do \n"}
	gw := NewGateway(p, time.Second, discardLogger())

	got, err := gw.Invoke(context.Background(), "categorize this", false)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got != "  To-Do \n" {
		t.Fatalf("gateway must not trim or parse output, got %q", got)
	}
	if p.calls != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", p.calls)
	}
}

func TestGateway_Invoke_Timeout(t *testing.T) {
	p := &stubProvider{name: "slow", text: "never", delay: 200 * time.Millisecond}
	gw := NewGateway(p, 20*time.Millisecond, discardLogger())

	_, err := gw.Invoke(context.Background(), "prompt", false)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if domain.GatewayErrKind(err) != domain.ErrKindTimeout {
		t.Fatalf("expected timeout kind, got %q (%v)", domain.GatewayErrKind(err), err)
	}
}

func TestGateway_Invoke_NoRetryOnFailure(t *testing.T) {
	p := &stubProvider{name: "down", err: errors.New("connection refused")}
	gw := NewGateway(p, time.Second, discardLogger())

	_, err := gw.Invoke(context.Background(), "prompt", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.GatewayErrKind(err) != domain.ErrKindUnavailable {
		t.Fatalf("transport errors should classify as unavailable, got %q", domain.GatewayErrKind(err))
	}
	if p.calls != 1 {
		t.Fatalf("gateway must not retry, got %d calls", p.calls)
	}
}

func TestGateway_Invoke_PassesThroughTypedErrors(t *testing.T) {
	p := &stubProvider{name: "stub", err: &domain.GatewayError{
		Kind:   domain.ErrKindUpstream,
		Status: 500,
		Detail: "stub: internal",
	}}
	gw := NewGateway(p, time.Second, discardLogger())

	_, err := gw.Invoke(context.Background(), "prompt", true)
	if domain.GatewayErrKind(err) != domain.ErrKindUpstream {
		t.Fatalf("expected upstream kind preserved, got %q", domain.GatewayErrKind(err))
	}
	var ge *domain.GatewayError
	if !errors.As(err, &ge) || ge.Status != 500 {
		t.Fatalf("expected status 500 preserved, got %+v", err)
	}
}

// --- statusError taxonomy ---

func TestStatusError_AuthMapsToUnavailable(t *testing.T) {
	if statusError("x", 401, "no key").Kind != domain.ErrKindUnavailable {
		t.Fatal("401 should map to unavailable")
	}
	if statusError("x", 403, "forbidden").Kind != domain.ErrKindUnavailable {
		t.Fatal("403 should map to unavailable")
	}
	if statusError("x", 500, "boom").Kind != domain.ErrKindUpstream {
		t.Fatal("500 should map to upstream")
	}
	if statusError("x", 429, "rate limited").Kind != domain.ErrKindUpstream {
		t.Fatal("429 should map to upstream")
	}
}
