package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Transport delivers a rendered message.
type Transport interface {
	SendRaw(ctx context.Context, from string, to []string, raw []byte) error
}

// Mailer renders outreach emails and passes them to a Transport.
type Mailer struct {
	from      string
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
}

func New(from string, transport Transport, logger *slog.Logger) *Mailer {
	return &Mailer{
		from:      from,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

// SendEmail sends body to a single address, attaching the file at
// attachmentPath when it is non-empty.
func (m *Mailer) SendEmail(ctx context.Context, to, subject, body, attachmentPath string) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}

	raw, err := Build(Message{
		From:           m.from,
		To:             to,
		Subject:        subject,
		Body:           body,
		AttachmentPath: attachmentPath,
	}, m.now())
	if err != nil {
		return fmt.Errorf("building email to %s: %w", to, err)
	}

	if err := m.transport.SendRaw(ctx, m.from, []string{to}, raw); err != nil {
		return err
	}
	m.logger.Debug("email sent", "to", to, "bytes", len(raw))
	return nil
}
