package domain

import (
	"context"
	"time"
)

// Known category tags. The tag space is open: the model may return anything,
// and whatever it returns is stored verbatim. These constants only exist so
// downstream consumers can bucket the tags they recognize.
const (
	CategoryImportant  = "Important"
	CategoryToDo       = "To-Do"
	CategoryNewsletter = "Newsletter"
	CategorySpam       = "Spam"
)

// KnownCategory reports whether tag is one of the four recognized buckets.
// Anything else is presented as a neutral "other" category by consumers.
func KnownCategory(tag string) bool {
	switch tag {
	case CategoryImportant, CategoryToDo, CategoryNewsletter, CategorySpam:
		return true
	}
	return false
}

// Email is a normalized inbox message plus the annotations derived for it.
// Category and ActionItems are empty until the annotation pipeline has run
// for this email at least once, and are fully replaced on each re-run.
type Email struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Timestamp   time.Time    `json:"timestamp"`
	Category    string       `json:"category,omitempty"`
	ActionItems []ActionItem `json:"actionItems"`
}

// Annotated reports whether the pipeline has processed this email.
func (e *Email) Annotated() bool {
	return e.Category != ""
}

// ActionItem is a single task extracted from an email. Deadline is free text;
// no date format is enforced.
type ActionItem struct {
	Task     string `json:"task"`
	Deadline string `json:"deadline,omitempty"`
}

// EmailStore is the email repository: a plain keyed store. Inbox listings are
// always read in full; filtering and sorting belong to the caller.
type EmailStore interface {
	// UpsertAll inserts or replaces the given emails, preserving existing
	// annotations for ids that are already present.
	UpsertAll(ctx context.Context, emails []Email) error

	List(ctx context.Context) ([]Email, error)
	Get(ctx context.Context, id string) (*Email, error)

	// UpdateAnnotations replaces the category and action items of one email
	// as a single atomic write.
	UpdateAnnotations(ctx context.Context, id string, category string, items []ActionItem) error
}

// EmailSource yields normalized email records for seeding the repository.
// The engine is agnostic to which source populated it.
type EmailSource interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]Email, error)
}
