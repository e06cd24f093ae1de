package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"inboxagent/internal/domain"
	"inboxagent/internal/metrics"
)

// Drafter generates reply drafts. Drafts land in the draft store for manual
// review; nothing in this type or anywhere else can send one.
type Drafter struct {
	gateway domain.Gateway
	drafts  domain.DraftStore
	prompts Prompts
	logger  *slog.Logger
}

func NewDrafter(gateway domain.Gateway, drafts domain.DraftStore, prompts Prompts, logger *slog.Logger) *Drafter {
	return &Drafter{gateway: gateway, drafts: drafts, prompts: prompts, logger: logger}
}

// Generate produces and stores one reply draft for the given email. The
// reply is addressed back to the sender with the subject prefixed "Re: "
// unconditionally. Gateway errors propagate typed so the caller can
// distinguish a timeout from missing credentials.
func (d *Drafter) Generate(ctx context.Context, email *domain.Email) (*domain.Draft, error) {
	template, err := d.prompts.Get(domain.PromptDraftReply)
	if err != nil {
		return nil, err
	}

	body, err := d.gateway.Invoke(ctx, buildDraftPrompt(template, email), false)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	// Models like to bold headings; plain text drafts keep none of that.
	body = strings.TrimSpace(strings.ReplaceAll(body, "**", ""))

	draft := domain.Draft{
		ID:             uuid.NewString(),
		To:             email.From,
		Subject:        "Re: " + email.Subject,
		Body:           body,
		CreatedAt:      time.Now(),
		SourceEmailID:  email.ID,
		SourceCategory: email.Category,
	}

	if err := d.drafts.Add(ctx, draft); err != nil {
		return nil, fmt.Errorf("store draft: %w", err)
	}

	metrics.DraftsGenerated.Inc()
	d.logger.Info("draft generated",
		"draft", draft.ID,
		"email", email.ID,
		"to", draft.To,
	)
	return &draft, nil
}
