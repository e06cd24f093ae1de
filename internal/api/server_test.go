package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"inboxagent/internal/agent"
	"inboxagent/internal/domain"
	"inboxagent/internal/store"
)

// --- Fakes ---

type fakeEmails struct {
	emails map[string]*domain.Email
}

func newFakeEmails(emails ...domain.Email) *fakeEmails {
	f := &fakeEmails{emails: make(map[string]*domain.Email)}
	for i := range emails {
		e := emails[i]
		f.emails[e.ID] = &e
	}
	return f
}

func (f *fakeEmails) UpsertAll(ctx context.Context, emails []domain.Email) error {
	for i := range emails {
		e := emails[i]
		f.emails[e.ID] = &e
	}
	return nil
}

func (f *fakeEmails) List(ctx context.Context) ([]domain.Email, error) {
	var out []domain.Email
	for _, e := range f.emails {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeEmails) Get(ctx context.Context, id string) (*domain.Email, error) {
	e, ok := f.emails[id]
	if !ok {
		return nil, fmt.Errorf("email %s: %w", id, store.ErrNotFound)
	}
	return e, nil
}

func (f *fakeEmails) UpdateAnnotations(ctx context.Context, id string, category string, items []domain.ActionItem) error {
	e, ok := f.emails[id]
	if !ok {
		return fmt.Errorf("email %s: %w", id, store.ErrNotFound)
	}
	e.Category = category
	e.ActionItems = items
	return nil
}

type fakeDrafts struct {
	drafts []domain.Draft
}

func (f *fakeDrafts) Add(ctx context.Context, d domain.Draft) error {
	f.drafts = append(f.drafts, d)
	return nil
}

func (f *fakeDrafts) List(ctx context.Context) ([]domain.Draft, error) {
	return f.drafts, nil
}

func (f *fakeDrafts) Delete(ctx context.Context, id string) error {
	for i, d := range f.drafts {
		if d.ID == id {
			f.drafts = append(f.drafts[:i], f.drafts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("draft %s: %w", id, store.ErrNotFound)
}

type fakePrompts struct {
	set domain.PromptSet
}

func (f *fakePrompts) All() domain.PromptSet { return f.set.Clone() }

func (f *fakePrompts) Update(ctx context.Context, updates map[string]string) (domain.PromptSet, error) {
	for k, v := range updates {
		if _, ok := f.set[k]; !ok {
			return nil, &domain.ValidationError{Field: k, Reason: "unknown prompt key"}
		}
		f.set[k] = v
	}
	return f.set.Clone(), nil
}

func (f *fakePrompts) Reset(ctx context.Context) (domain.PromptSet, error) {
	return f.set.Clone(), nil
}

type fakeAnnotator struct {
	summary agent.Summary
	err     error
	scope   agent.Scope
}

func (f *fakeAnnotator) Run(ctx context.Context, scope agent.Scope) (agent.Summary, error) {
	f.scope = scope
	return f.summary, f.err
}

type fakeChat struct{ answer string }

func (f *fakeChat) Respond(ctx context.Context, email *domain.Email, query, history string) string {
	return f.answer
}

type fakeDrafter struct {
	draft *domain.Draft
	err   error
}

func (f *fakeDrafter) Generate(ctx context.Context, email *domain.Email) (*domain.Draft, error) {
	return f.draft, f.err
}

type fakeSource struct {
	name   string
	emails []domain.Email
	err    error
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Fetch(ctx context.Context, limit int) ([]domain.Email, error) {
	return f.emails, f.err
}

func testServer(t *testing.T, mutate func(*ServerConfig)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := ServerConfig{
		Emails: newFakeEmails(domain.Email{
			ID: "e1", From: "sarah@company.com", Subject: "Team Sync", Body: "Thursday?", Timestamp: time.Now(),
		}),
		Drafts:    &fakeDrafts{},
		Prompts:   &fakePrompts{set: domain.PromptSet{domain.PromptChat: "chat tmpl"}},
		Annotator: &fakeAnnotator{summary: agent.Summary{Attempted: 1, Succeeded: 1}},
		Chat:      &fakeChat{answer: "Thursday at 2pm."},
		Drafter:   &fakeDrafter{draft: &domain.Draft{ID: "d1", To: "sarah@company.com"}},
		Mock:      &fakeSource{name: "mock", emails: []domain.Email{{ID: "m1", From: "a@b.c", Subject: "s", Body: "b"}}},
		MetricsAt: "/metrics",
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

// --- Routes ---

func TestHealth(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, body := doJSON(t, "GET", ts.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["mockMode"] != true {
		t.Fatal("without a live source the server reports mock mode")
	}
}

func TestListEmails(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, body := doJSON(t, "GET", ts.URL+"/api/emails", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("expected 1 email, got %v", body["count"])
	}
}

func TestLoadMock_Seeds(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, body := doJSON(t, "POST", ts.URL+"/api/emails/load-mock", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, body)
	}
	if body["count"].(float64) != 1 || body["source"] != "mock" {
		t.Fatalf("unexpected body: %v", body)
	}

	_, listing := doJSON(t, "GET", ts.URL+"/api/emails", nil)
	if listing["count"].(float64) != 2 {
		t.Fatalf("expected seeded email in listing, got %v", listing["count"])
	}
}

func TestFetch_WithoutLiveSource(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, body := doJSON(t, "POST", ts.URL+"/api/emails/fetch", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %v", resp.StatusCode, body)
	}
}

func TestProcess_ScopeParsing(t *testing.T) {
	ann := &fakeAnnotator{summary: agent.Summary{Attempted: 3, Succeeded: 2}}
	_, ts := testServer(t, func(cfg *ServerConfig) { cfg.Annotator = ann })

	resp, body := doJSON(t, "POST", ts.URL+"/api/emails/process?scope=unannotated", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ann.scope != agent.ScopeUnannotated {
		t.Fatalf("scope not forwarded, got %q", ann.scope)
	}
	if body["attempted"].(float64) != 3 || body["succeeded"].(float64) != 2 {
		t.Fatalf("unexpected summary: %v", body)
	}

	resp, _ = doJSON(t, "POST", ts.URL+"/api/emails/process?scope=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad scope, got %d", resp.StatusCode)
	}
}

func TestChat_RoundTrip(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, body := doJSON(t, "POST", ts.URL+"/api/chat", map[string]string{
		"emailId": "e1",
		"query":   "when is the meeting?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, body)
	}
	if body["response"] != "Thursday at 2pm." {
		t.Fatalf("unexpected answer: %v", body)
	}
}

func TestChat_Validation(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, _ := doJSON(t, "POST", ts.URL+"/api/chat", map[string]string{"emailId": "e1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing query should 400, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", ts.URL+"/api/chat", map[string]string{"emailId": "ghost", "query": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown email should 404, got %d", resp.StatusCode)
	}
}

func TestGenerateDraft(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, body := doJSON(t, "POST", ts.URL+"/api/drafts/generate", map[string]string{"emailId": "e1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, body)
	}
	draft := body["draft"].(map[string]any)
	if draft["id"] != "d1" {
		t.Fatalf("unexpected draft: %v", draft)
	}
}

func TestGenerateDraft_GatewayErrors(t *testing.T) {
	cases := []struct {
		kind domain.ErrKind
		want int
	}{
		{domain.ErrKindUnavailable, http.StatusServiceUnavailable},
		{domain.ErrKindTimeout, http.StatusGatewayTimeout},
		{domain.ErrKindUpstream, http.StatusBadGateway},
	}
	for _, tc := range cases {
		_, ts := testServer(t, func(cfg *ServerConfig) {
			cfg.Drafter = &fakeDrafter{err: &domain.GatewayError{Kind: tc.kind, Detail: "x"}}
		})
		resp, _ := doJSON(t, "POST", ts.URL+"/api/drafts/generate", map[string]string{"emailId": "e1"})
		if resp.StatusCode != tc.want {
			t.Fatalf("kind %s: expected %d, got %d", tc.kind, tc.want, resp.StatusCode)
		}
	}
}

func TestDrafts_DeleteNotFound(t *testing.T) {
	_, ts := testServer(t, nil)
	req, _ := http.NewRequest("DELETE", ts.URL+"/api/drafts/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPrompts_UpdateAndValidation(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, body := doJSON(t, "PUT", ts.URL+"/api/prompts", map[string]string{domain.PromptChat: "new tmpl"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, body)
	}
	prompts := body["prompts"].(map[string]any)
	if prompts[domain.PromptChat] != "new tmpl" {
		t.Fatalf("update not applied: %v", prompts)
	}

	resp, _ = doJSON(t, "PUT", ts.URL+"/api/prompts", map[string]string{"bogus": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown key should 400, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "PUT", ts.URL+"/api/prompts", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty update should 400, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := testServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct == "" || ct == "application/json" {
		t.Fatalf("expected prometheus text content type, got %q", ct)
	}
}
