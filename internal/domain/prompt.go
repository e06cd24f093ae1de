package domain

import "context"

// Prompt template keys. The key set is fixed: no key may be added or removed,
// only the template text behind it changes.
const (
	PromptCategorize     = "categorize"
	PromptExtractActions = "extractActions"
	PromptDraftReply     = "draftReply"
	PromptChat           = "chat"
)

// PromptKeys lists the recognized template names in a stable order.
var PromptKeys = []string{PromptCategorize, PromptExtractActions, PromptDraftReply, PromptChat}

// PromptSet maps the four template keys to free-text template strings.
type PromptSet map[string]string

// Clone returns an independent copy of the set.
func (s PromptSet) Clone() PromptSet {
	out := make(PromptSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// PromptRepository persists the prompt set so edits survive restarts.
// Last-writer-wins is sufficient: edits are rare and human-paced.
type PromptRepository interface {
	LoadPrompts(ctx context.Context) (PromptSet, error)
	SavePrompts(ctx context.Context, set PromptSet) error
}
