// Package store persists emails, drafts, and prompt templates in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"inboxagent/internal/domain"
)

// ErrNotFound is returned when a lookup or delete targets an id that does not
// exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements domain.EmailStore, domain.DraftStore, and
// domain.PromptRepository on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS emails (
		id           TEXT PRIMARY KEY,
		sender       TEXT NOT NULL,
		subject      TEXT NOT NULL,
		body         TEXT NOT NULL,
		received_at  DATETIME NOT NULL,
		category     TEXT,
		action_items TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_emails_received ON emails(received_at);

	CREATE TABLE IF NOT EXISTS drafts (
		id              TEXT PRIMARY KEY,
		to_addr         TEXT NOT NULL,
		subject         TEXT NOT NULL,
		body            TEXT NOT NULL,
		source_email_id TEXT,
		source_category TEXT,
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_created ON drafts(created_at);

	CREATE TABLE IF NOT EXISTS prompts (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- EmailStore ---

// UpsertAll inserts new emails and refreshes header fields of existing ones.
// Existing annotations are preserved so re-seeding never loses pipeline work.
func (s *SQLiteStore) UpsertAll(ctx context.Context, emails []domain.Email) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range emails {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO emails (id, sender, subject, body, received_at, category, action_items)
			 VALUES (?, ?, ?, ?, ?, NULL, NULL)
			 ON CONFLICT(id) DO UPDATE SET
			   sender = excluded.sender,
			   subject = excluded.subject,
			   body = excluded.body,
			   received_at = excluded.received_at`,
			e.ID, e.From, e.Subject, e.Body, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("upsert email %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("store: upserted emails", "count", len(emails))
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.Email, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, subject, body, received_at, category, action_items
		 FROM emails ORDER BY received_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []domain.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Email, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sender, subject, body, received_at, category, action_items
		 FROM emails WHERE id = ?`, id,
	)
	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return e, err
}

// UpdateAnnotations replaces the category and action items of one email in a
// single write. Both fields always change together; a re-run fully replaces
// the previous annotations.
func (s *SQLiteStore) UpdateAnnotations(ctx context.Context, id string, category string, items []domain.ActionItem) error {
	if items == nil {
		items = []domain.ActionItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal action items: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE emails SET category = ?, action_items = ? WHERE id = ?`,
		category, string(itemsJSON), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*domain.Email, error) {
	var e domain.Email
	var category, itemsJSON sql.NullString
	if err := row.Scan(&e.ID, &e.From, &e.Subject, &e.Body, &e.Timestamp, &category, &itemsJSON); err != nil {
		return nil, err
	}
	e.Category = category.String
	e.ActionItems = []domain.ActionItem{}
	if itemsJSON.Valid && itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &e.ActionItems); err != nil {
			return nil, fmt.Errorf("corrupt action items for email %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

// --- DraftStore ---

// Drafts returns the store as a domain.DraftStore. A separate view is needed
// because both the email and draft contracts name their listing method List.
func (s *SQLiteStore) Drafts() domain.DraftStore {
	return draftView{s}
}

type draftView struct{ s *SQLiteStore }

func (v draftView) Add(ctx context.Context, d domain.Draft) error { return v.s.AddDraft(ctx, d) }
func (v draftView) List(ctx context.Context) ([]domain.Draft, error) {
	return v.s.ListDrafts(ctx)
}
func (v draftView) Delete(ctx context.Context, id string) error { return v.s.DeleteDraft(ctx, id) }

func (s *SQLiteStore) AddDraft(ctx context.Context, d domain.Draft) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, to_addr, subject, body, source_email_id, source_category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.To, d.Subject, d.Body, d.SourceEmailID, d.SourceCategory, d.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]domain.Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, to_addr, subject, body, source_email_id, source_category, created_at
		 FROM drafts ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		var d domain.Draft
		var srcID, srcCat sql.NullString
		if err := rows.Scan(&d.ID, &d.To, &d.Subject, &d.Body, &srcID, &srcCat, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.SourceEmailID = srcID.String
		d.SourceCategory = srcCat.String
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- PromptRepository ---

func (s *SQLiteStore) LoadPrompts(ctx context.Context) (domain.PromptSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prompts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(domain.PromptSet)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		set[key] = value
	}
	return set, rows.Err()
}

func (s *SQLiteStore) SavePrompts(ctx context.Context, set domain.PromptSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range set {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO prompts (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("save prompt %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
