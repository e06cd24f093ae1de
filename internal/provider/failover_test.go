package provider

import (
	"context"
	"errors"
	"testing"

	"inboxagent/internal/domain"
)

func TestFailover_UsesFirstHealthy(t *testing.T) {
	good := &stubProvider{name: "good", text: "hello"}
	fp := NewFailoverProvider([]domain.Provider{good}, discardLogger())

	resp, err := fp.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("unexpected response: %q", resp.Text)
	}
}

func TestFailover_FallsBackOnError(t *testing.T) {
	bad := &stubProvider{name: "bad", err: errors.New("connection refused")}
	good := &stubProvider{name: "good", text: "fallback answer"}
	fp := NewFailoverProvider([]domain.Provider{bad, good}, discardLogger())

	resp, err := fp.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "fallback answer" {
		t.Fatalf("expected fallback provider response, got %q", resp.Text)
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("expected one call each, got bad=%d good=%d", bad.calls, good.calls)
	}
}

func TestFailover_AllFail(t *testing.T) {
	b1 := &stubProvider{name: "b1", err: errors.New("down")}
	b2 := &stubProvider{name: "b2", err: errors.New("also down")}
	fp := NewFailoverProvider([]domain.Provider{b1, b2}, discardLogger())

	if _, err := fp.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailover_StopsOnCanceledContext(t *testing.T) {
	bad := &stubProvider{name: "bad", err: errors.New("down")}
	never := &stubProvider{name: "never", text: "x"}
	fp := NewFailoverProvider([]domain.Provider{bad, never}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fp.Generate(ctx, domain.GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error with canceled context")
	}
	if never.calls != 0 {
		t.Fatalf("should not try next provider after cancellation, got %d calls", never.calls)
	}
}

func TestFailover_Name(t *testing.T) {
	fp := NewFailoverProvider([]domain.Provider{
		&stubProvider{name: "a"},
		&stubProvider{name: "b"},
	}, discardLogger())
	if fp.Name() != "failover(a>b)" {
		t.Fatalf("unexpected name: %q", fp.Name())
	}
}
