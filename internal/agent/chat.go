package agent

import (
	"context"
	"log/slog"

	"inboxagent/internal/domain"
	"inboxagent/internal/metrics"
)

// chatFallback is returned whenever the model call fails. The chat surface
// never exposes raw errors to the person typing.
const chatFallback = "I encountered an error processing your request. Please try again."

// Chat answers free-form questions about a single email. It is stateless:
// the caller owns the transcript and passes it in whole on every turn.
type Chat struct {
	gateway domain.Gateway
	prompts Prompts
	logger  *slog.Logger
}

func NewChat(gateway domain.Gateway, prompts Prompts, logger *slog.Logger) *Chat {
	return &Chat{gateway: gateway, prompts: prompts, logger: logger}
}

// Respond builds one prompt from the chat template, the email, the whole
// history transcript, and the question, then returns the model's answer
// verbatim. On any failure it returns the fixed fallback text.
func (c *Chat) Respond(ctx context.Context, email *domain.Email, query, history string) string {
	metrics.ChatRequests.Inc()

	template, err := c.prompts.Get(domain.PromptChat)
	if err != nil {
		c.logger.Error("chat: prompt lookup failed", "error", err)
		return chatFallback
	}

	answer, err := c.gateway.Invoke(ctx, buildChatPrompt(template, email, query, history), false)
	if err != nil {
		c.logger.Warn("chat: gateway call failed",
			"email", email.ID,
			"kind", string(domain.GatewayErrKind(err)),
			"error", err,
		)
		return chatFallback
	}
	return answer
}
