// Package agent implements the LLM-facing behaviors: the annotation
// pipeline, the chat engine, and the draft generator. All model I/O goes
// through a domain.Gateway; all templates come from the prompt store.
package agent

import (
	"fmt"

	"inboxagent/internal/domain"
)

// Body truncation limits. Categorization needs less context than extraction
// or drafting; keeping prompts short keeps latency down on free-tier models.
const (
	categorizeBodyLimit = 500
	extractBodyLimit    = 800
	draftBodyLimit      = 800
	chatBodyLimit       = 800
)

// Prompts is the read side of the prompt store the agent needs.
type Prompts interface {
	Get(key string) (string, error)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func buildCategorizePrompt(template string, e *domain.Email) string {
	return fmt.Sprintf(`%s

From: %s
Subject: %s
Body: %s

Category:`, template, e.From, e.Subject, truncate(e.Body, categorizeBodyLimit))
}

func buildExtractPrompt(template string, e *domain.Email) string {
	return fmt.Sprintf(`%s

Email:
From: %s
Subject: %s
Body: %s

JSON:`, template, e.From, e.Subject, truncate(e.Body, extractBodyLimit))
}

func buildDraftPrompt(template string, e *domain.Email) string {
	return fmt.Sprintf(`%s

Original:
From: %s
Subject: %s
Body: %s

Reply:`, template, e.From, e.Subject, truncate(e.Body, draftBodyLimit))
}

// buildChatPrompt composes the chat template, the email under discussion,
// the caller-supplied transcript, and the question. The transcript is an
// opaque string substituted whole; trimming long histories is the caller's
// call, not ours.
func buildChatPrompt(template string, e *domain.Email, query, history string) string {
	historyStr := ""
	if history != "" {
		historyStr = "\n\nPrevious:\n" + history
	}

	return fmt.Sprintf(`%s

Email:
From: %s
Subject: %s
Body: %s%s

Question: %s

Answer (be concise):`, template, e.From, e.Subject, truncate(e.Body, chatBodyLimit), historyStr, query)
}
