// Package prompt holds the editable prompt templates that drive every LLM
// call the agent makes. The key set is fixed; only the template text behind
// each key can change.
package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"inboxagent/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultSet parses the embedded default templates. Panics on a malformed
// embed since that is a build defect, not a runtime condition.
func DefaultSet() domain.PromptSet {
	var raw map[string]string
	if err := yaml.Unmarshal(defaultsYAML, &raw); err != nil {
		panic(fmt.Sprintf("prompt: embedded defaults are malformed: %v", err))
	}
	set := make(domain.PromptSet, len(domain.PromptKeys))
	for _, key := range domain.PromptKeys {
		text, ok := raw[key]
		if !ok || strings.TrimSpace(text) == "" {
			panic(fmt.Sprintf("prompt: embedded defaults missing key %q", key))
		}
		set[key] = text
	}
	return set
}

// Store is the in-memory source of truth for prompt templates, persisted
// through a repository so edits survive restarts. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	set    domain.PromptSet
	repo   domain.PromptRepository
	logger *slog.Logger
}

// NewStore loads the persisted prompt set, falling back to the embedded
// defaults when the repository has nothing (first run) or is missing keys.
func NewStore(ctx context.Context, repo domain.PromptRepository, logger *slog.Logger) (*Store, error) {
	s := &Store{
		set:    DefaultSet(),
		repo:   repo,
		logger: logger,
	}

	if repo == nil {
		return s, nil
	}

	saved, err := repo.LoadPrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	restored := 0
	for _, key := range domain.PromptKeys {
		if text, ok := saved[key]; ok && strings.TrimSpace(text) != "" {
			s.set[key] = text
			restored++
		}
	}
	if restored > 0 {
		logger.Debug("prompt store: restored saved templates", "count", restored)
	}
	return s, nil
}

// Get returns the template for key, or an error for an unknown key.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.set[key]
	if !ok {
		return "", &domain.ValidationError{Field: key, Reason: "unknown prompt key"}
	}
	return text, nil
}

// All returns a copy of the current prompt set.
func (s *Store) All() domain.PromptSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Clone()
}

// Update applies a partial update: keys present in updates are replaced,
// keys absent keep their current text. An unknown key or an empty template
// rejects the whole update; nothing is applied.
func (s *Store) Update(ctx context.Context, updates map[string]string) (domain.PromptSet, error) {
	for key, text := range updates {
		if _, known := DefaultSet()[key]; !known {
			return nil, &domain.ValidationError{Field: key, Reason: "unknown prompt key"}
		}
		if strings.TrimSpace(text) == "" {
			return nil, &domain.ValidationError{Field: key, Reason: "template must not be empty"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Build the next set aside and swap it in only once persisted, so a
	// failed save never leaves memory ahead of disk.
	next := s.set.Clone()
	for key, text := range updates {
		next[key] = text
	}
	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	s.set = next
	s.logger.Info("prompt store: templates updated", "count", len(updates))
	return s.set.Clone(), nil
}

// Reset replaces the whole set with the embedded defaults and persists them.
func (s *Store) Reset(ctx context.Context) (domain.PromptSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := DefaultSet()
	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	s.set = next
	s.logger.Info("prompt store: reset to defaults")
	return s.set.Clone(), nil
}

func (s *Store) persist(ctx context.Context, set domain.PromptSet) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SavePrompts(ctx, set); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	return nil
}
