package domain

import (
	"context"
	"time"
)

// Draft is a generated, unsent reply awaiting manual review. Drafts are
// immutable after creation and are never transmitted: there is no send
// capability anywhere in the codebase.
type Draft struct {
	ID             string    `json:"id"`
	To             string    `json:"to"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
	SourceEmailID  string    `json:"originalEmailId,omitempty"`
	SourceCategory string    `json:"originalCategory,omitempty"`
}

// DraftStore holds generated drafts. Deletion is the only mutation.
type DraftStore interface {
	Add(ctx context.Context, d Draft) error

	// List returns all drafts, newest first.
	List(ctx context.Context) ([]Draft, error)

	// Delete removes a draft by id. Returns a not-found error when no draft
	// has that id; the collection is left unchanged in that case.
	Delete(ctx context.Context, id string) error
}
