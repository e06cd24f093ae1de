package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"inboxagent/internal/domain"
)

// IMAPConfig configures a one-shot IMAP fetch.
type IMAPConfig struct {
	Server   string // host:port
	Username string
	Password string
	Mailbox  string
}

// IMAPSource fetches the newest messages from a mailbox over IMAP with TLS.
// Each Fetch opens a fresh connection; the agent seeds on demand rather than
// holding a long-lived session.
type IMAPSource struct {
	cfg    IMAPConfig
	html   *htmlToText
	logger *slog.Logger
}

func NewIMAPSource(cfg IMAPConfig, logger *slog.Logger) *IMAPSource {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPSource{
		cfg:    cfg,
		html:   newHTMLToText(),
		logger: logger,
	}
}

func (s *IMAPSource) Name() string { return "imap" }

// Fetch connects, logs in, and reads the last limit messages from the
// configured mailbox, newest included. Bodies are normalized to plain text.
func (s *IMAPSource) Fetch(ctx context.Context, limit int) ([]domain.Email, error) {
	if limit <= 0 {
		limit = 20
	}

	s.logger.Info("imap: connecting", "server", s.cfg.Server, "mailbox", s.cfg.Mailbox)

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", s.cfg.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("imap client: %w", err)
	}
	defer c.Logout()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	mbox, err := c.Select(s.cfg.Mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("imap select %s: %w", s.cfg.Mailbox, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var emails []domain.Email
	for msg := range messages {
		email, err := s.parseMessage(msg, section)
		if err != nil {
			s.logger.Warn("imap: skipping unparseable message", "uid", msg.Uid, "error", err)
			continue
		}
		emails = append(emails, *email)
	}
	if err := <-done; err != nil {
		return emails, fmt.Errorf("imap fetch: %w", err)
	}

	s.logger.Info("imap: fetched messages", "count", len(emails))
	return emails, nil
}

func (s *IMAPSource) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*domain.Email, error) {
	email := &domain.Email{
		ID:          fmt.Sprintf("imap_%d", msg.Uid),
		ActionItems: []domain.ActionItem{},
	}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		email.Timestamp = msg.Envelope.Date
		if msg.Envelope.MessageId != "" {
			email.ID = "imap_" + strings.Trim(msg.Envelope.MessageId, "<>")
		}
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
	}

	bodyText, bodyHTML, err := s.readBody(msg.GetBody(section))
	if err != nil {
		return nil, err
	}

	// Plain text wins; HTML is a fallback that gets normalized.
	switch {
	case bodyText != "":
		email.Body = strings.TrimSpace(bodyText)
	case bodyHTML != "":
		text, err := s.html.Parse(bodyHTML)
		if err != nil {
			return nil, fmt.Errorf("html body: %w", err)
		}
		email.Body = text
	}

	return email, nil
}

func (s *IMAPSource) readBody(r io.Reader) (text, html string, err error) {
	if r == nil {
		return "", "", nil
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", "", fmt.Errorf("mail reader: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return text, html, nil
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(ct, "text/plain"):
			text = string(body)
		case strings.HasPrefix(ct, "text/html"):
			html = string(body)
		}
	}
	return text, html, nil
}
