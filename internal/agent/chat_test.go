package agent

import (
	"context"
	"strings"
	"testing"

	"inboxagent/internal/domain"
)

// capturingGateway records the single prompt it receives.
type capturingGateway struct {
	prompt string
	answer string
	err    error
}

func (g *capturingGateway) Invoke(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func TestChat_Respond_AnswerVerbatim(t *testing.T) {
	gw := &capturingGateway{answer: "The meeting is Thursday at 2pm."}
	chat := NewChat(gw, fixedPrompts{}, testLogger())
	email := teamSyncEmail()

	got := chat.Respond(context.Background(), &email, "When is the meeting?", "")
	if got != "The meeting is Thursday at 2pm." {
		t.Fatalf("answer must pass through verbatim, got %q", got)
	}
	if !strings.Contains(gw.prompt, "Question: When is the meeting?") {
		t.Fatalf("prompt missing the question:\n%s", gw.prompt)
	}
	if !strings.Contains(gw.prompt, "From: sarah@company.com") {
		t.Fatal("prompt missing the email sender")
	}
}

func TestChat_Respond_FullHistoryVerbatimInPrompt(t *testing.T) {
	gw := &capturingGateway{answer: "ok"}
	chat := NewChat(gw, fixedPrompts{}, testLogger())
	email := teamSyncEmail()

	history := strings.Join([]string{
		"user: line one",
		"assistant: line two",
		"user: line three",
		"assistant: line four",
		"user: line five",
		"assistant: line six",
	}, "\n")

	chat.Respond(context.Background(), &email, "and now?", history)

	if !strings.Contains(gw.prompt, history) {
		t.Fatalf("prompt must carry the whole transcript verbatim:\n%s", gw.prompt)
	}
	if !strings.Contains(gw.prompt, "Previous:\n"+history) {
		t.Fatalf("transcript must sit under the Previous section:\n%s", gw.prompt)
	}
}

func TestChat_Respond_NoHistorySection(t *testing.T) {
	gw := &capturingGateway{answer: "ok"}
	chat := NewChat(gw, fixedPrompts{}, testLogger())
	email := teamSyncEmail()

	chat.Respond(context.Background(), &email, "hi", "")
	if strings.Contains(gw.prompt, "Previous:") {
		t.Fatal("empty history must not add a Previous section")
	}
}

func TestChat_Respond_FallbackOnGatewayError(t *testing.T) {
	gw := &capturingGateway{err: &domain.GatewayError{Kind: domain.ErrKindUnavailable, Detail: "no key"}}
	chat := NewChat(gw, fixedPrompts{}, testLogger())
	email := teamSyncEmail()

	got := chat.Respond(context.Background(), &email, "hello?", "")
	if got != chatFallback {
		t.Fatalf("expected fallback text, got %q", got)
	}
}
