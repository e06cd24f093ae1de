package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"inboxagent/internal/domain"
	"inboxagent/internal/metrics"
)

// Scope selects which emails a pipeline run covers.
type Scope string

const (
	ScopeAll         Scope = "all"
	ScopeUnannotated Scope = "unannotated"
)

// Summary reports a pipeline run. Attempted counts every email in scope;
// Succeeded counts those whose annotations were written.
type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
}

// Annotator runs the annotation pipeline: categorize each email, extract
// action items where the category warrants it, and write both as one
// update. Failures are isolated per email; one bad or slow model call never
// blocks the rest of the batch.
type Annotator struct {
	gateway     domain.Gateway
	emails      domain.EmailStore
	prompts     Prompts
	concurrency int
	logger      *slog.Logger
}

func NewAnnotator(gateway domain.Gateway, emails domain.EmailStore, prompts Prompts, concurrency int, logger *slog.Logger) *Annotator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Annotator{
		gateway:     gateway,
		emails:      emails,
		prompts:     prompts,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run annotates every email in scope with bounded parallelism. Re-runs fully
// replace previous annotations, so the same inbox always converges to the
// same state under a deterministic model.
func (a *Annotator) Run(ctx context.Context, scope Scope) (Summary, error) {
	all, err := a.emails.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list emails: %w", err)
	}

	var targets []domain.Email
	for _, e := range all {
		if scope == ScopeUnannotated && e.Annotated() {
			continue
		}
		targets = append(targets, e)
	}
	if len(targets) == 0 {
		return Summary{}, nil
	}

	a.logger.Info("annotation run started",
		"scope", string(scope),
		"emails", len(targets),
		"concurrency", a.concurrency,
	)

	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	summary := Summary{Attempted: len(targets)}

	for i := range targets {
		email := targets[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			metrics.EmailsProcessed.Inc()
			if err := a.annotateOne(ctx, &email); err != nil {
				metrics.AnnotateFailures.Inc()
				a.logger.Warn("annotation failed",
					"email", email.ID,
					"subject", email.Subject,
					"error", err,
				)
				return
			}
			mu.Lock()
			summary.Succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	a.logger.Info("annotation run finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
	)
	return summary, nil
}

// annotateOne runs both model calls for a single email and stores the result
// atomically. Either gateway failure fails the email as a whole; a partial
// annotation is never written.
func (a *Annotator) annotateOne(ctx context.Context, email *domain.Email) error {
	category, err := a.categorize(ctx, email)
	if err != nil {
		return fmt.Errorf("categorize: %w", err)
	}

	items := []domain.ActionItem{}
	if category == domain.CategoryToDo || category == domain.CategoryImportant {
		items, err = a.extractActions(ctx, email)
		if err != nil {
			return fmt.Errorf("extract actions: %w", err)
		}
	}

	if err := a.emails.UpdateAnnotations(ctx, email.ID, category, items); err != nil {
		return fmt.Errorf("store annotations: %w", err)
	}
	return nil
}

// categorize asks the model for a single category tag. The trimmed response
// is used verbatim; normalization only kicks in when a known tag is buried
// in extra prose, and heuristics only when the model returned nothing.
func (a *Annotator) categorize(ctx context.Context, email *domain.Email) (string, error) {
	template, err := a.prompts.Get(domain.PromptCategorize)
	if err != nil {
		return "", err
	}

	raw, err := a.gateway.Invoke(ctx, buildCategorizePrompt(template, email), false)
	if err != nil {
		return "", err
	}

	tag := strings.TrimSpace(raw)
	if tag == "" {
		return fallbackCategory(email), nil
	}
	if domain.KnownCategory(tag) {
		return tag, nil
	}
	if known := normalizeCategory(tag); known != "" {
		return known, nil
	}
	// Open tag space: an answer naming no known tag is kept as-is.
	return tag, nil
}

// normalizeCategory recovers a known tag mentioned inside a longer response,
// e.g. "This is clearly Spam." -> "Spam".
func normalizeCategory(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "spam"):
		return domain.CategorySpam
	case strings.Contains(lower, "newsletter"):
		return domain.CategoryNewsletter
	case strings.Contains(lower, "to-do"), strings.Contains(lower, "todo"):
		return domain.CategoryToDo
	case strings.Contains(lower, "important"):
		return domain.CategoryImportant
	}
	return ""
}

// fallbackCategory buckets an email by surface signals when the model gave
// an empty response.
func fallbackCategory(email *domain.Email) string {
	subject := strings.ToLower(email.Subject)
	sender := strings.ToLower(email.From)

	if strings.Contains(subject, "!!!") || strings.Contains(subject, "won") || strings.Contains(sender, ".xyz") {
		return domain.CategorySpam
	}
	if strings.Contains(sender, "newsletter") || strings.Contains(sender, "digest") {
		return domain.CategoryNewsletter
	}
	for _, word := range []string{"action required", "please", "request", "need"} {
		if strings.Contains(subject, word) {
			return domain.CategoryToDo
		}
	}
	return domain.CategoryImportant
}

// extractActions asks the model for a JSON task list. Malformed output is
// recovered as an empty list, never an error: extraction quality is a model
// concern, availability is ours.
func (a *Annotator) extractActions(ctx context.Context, email *domain.Email) ([]domain.ActionItem, error) {
	template, err := a.prompts.Get(domain.PromptExtractActions)
	if err != nil {
		return nil, err
	}

	raw, err := a.gateway.Invoke(ctx, buildExtractPrompt(template, email), true)
	if err != nil {
		return nil, err
	}

	items := parseActionItems(raw)
	if len(items) == 0 && strings.TrimSpace(raw) != "" && findJSONStart(raw) < 0 {
		a.logger.Warn("extraction returned no parseable JSON",
			"email", email.ID,
			"preview", truncate(strings.TrimSpace(raw), 80),
		)
	}
	return items, nil
}

func findJSONStart(s string) int {
	return strings.IndexAny(s, "{[")
}
