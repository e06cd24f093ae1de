package source

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"inboxagent/internal/domain"
)

//go:embed mock_inbox.json
var mockInboxJSON []byte

// MockSource serves the embedded sample inbox. It lets the whole system run
// without any mail credentials: seed, annotate, chat, draft.
type MockSource struct{}

func NewMockSource() *MockSource { return &MockSource{} }

func (s *MockSource) Name() string { return "mock" }

// Fetch returns up to limit sample emails. A limit <= 0 returns all of them.
func (s *MockSource) Fetch(ctx context.Context, limit int) ([]domain.Email, error) {
	var emails []domain.Email
	if err := json.Unmarshal(mockInboxJSON, &emails); err != nil {
		return nil, fmt.Errorf("embedded mock inbox is malformed: %w", err)
	}
	if limit > 0 && len(emails) > limit {
		emails = emails[:limit]
	}
	for i := range emails {
		emails[i].ActionItems = []domain.ActionItem{}
	}
	return emails, nil
}
