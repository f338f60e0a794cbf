// Package outreach delivers the greeting and resume to a single contact.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/ratelimit"
	"github.com/amishk599/jobrelay/internal/retry"
)

// EmailSender delivers one email with an optional attachment.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body, attachmentPath string) error
}

// Content is what every contact receives.
type Content struct {
	Greeting       string
	AttachmentPath string
	Caption        string
	FallbackText   string // sent instead of the attachment when the file is missing
	EmailSubject   string
}

// Sender sends Content to handles through a Messenger and to addresses through
// an EmailSender. Sends are paced globally and per contact.
type Sender struct {
	messenger model.Messenger
	email     EmailSender // nil disables email outreach
	content   Content
	pace      *rate.Limiter
	contacts  *ratelimit.ContactLimiter
	retrier   *retry.Retrier
	timeout   time.Duration
	logger    *slog.Logger
}

// Options configures pacing and failure handling.
type Options struct {
	MinInterval time.Duration // between any two sends; zero disables global pacing
	Timeout     time.Duration // per contact, covering all steps and retries
	Limiter     *ratelimit.ContactLimiter
	Retrier     *retry.Retrier
}

func NewSender(messenger model.Messenger, email EmailSender, content Content, opts Options, logger *slog.Logger) *Sender {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Sender{
		messenger: messenger,
		email:     email,
		content:   content,
		pace:      rate.NewLimiter(limit, 1),
		contacts:  opts.Limiter,
		retrier:   opts.Retrier,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Send delivers the outreach content to c. A nil error means every step
// succeeded. An error wrapping model.ErrPartialDelivery means the greeting
// arrived and a later step failed.
func (s *Sender) Send(ctx context.Context, c model.Contact) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	switch c.Kind {
	case model.ContactEmail:
		return s.sendEmail(ctx, c)
	case model.ContactHandle:
		return s.sendChat(ctx, c)
	default:
		return &model.SendError{Kind: model.KindPermanent, Err: fmt.Errorf("unsupported contact kind %q", c.Kind)}
	}
}

func (s *Sender) sendChat(ctx context.Context, c model.Contact) error {
	if err := s.step(ctx, c, "greeting", func(ctx context.Context) error {
		return s.messenger.SendText(ctx, c.Address, s.content.Greeting)
	}); err != nil {
		return err
	}

	var err error
	if s.attachmentAvailable() {
		err = s.step(ctx, c, "attachment", func(ctx context.Context) error {
			return s.messenger.SendFile(ctx, c.Address, s.content.AttachmentPath, s.content.Caption)
		})
	} else {
		err = s.step(ctx, c, "fallback", func(ctx context.Context) error {
			return s.messenger.SendText(ctx, c.Address, s.content.FallbackText)
		})
	}
	if err != nil {
		// The greeting is already with the contact.
		return fmt.Errorf("%w: %w", model.ErrPartialDelivery, err)
	}
	return nil
}

func (s *Sender) sendEmail(ctx context.Context, c model.Contact) error {
	if s.email == nil {
		return &model.SendError{Kind: model.KindPermanent, Err: errors.New("email outreach disabled")}
	}

	body := s.content.Greeting
	attachment := ""
	if s.attachmentAvailable() {
		attachment = s.content.AttachmentPath
	} else if s.content.FallbackText != "" {
		body += "\n\n" + s.content.FallbackText
	}

	return s.step(ctx, c, "email", func(ctx context.Context) error {
		return s.email.SendEmail(ctx, c.Address, s.content.EmailSubject, body, attachment)
	})
}

// step runs one send under pacing, the contact's backoff, and the retrier.
func (s *Sender) step(ctx context.Context, c model.Contact, name string, fn func(context.Context) error) error {
	key := c.Normalized()
	op := fmt.Sprintf("%s to %s", name, c.Address)

	attempt := func(ctx context.Context) error {
		if s.contacts != nil {
			if err := s.contacts.Wait(ctx, key); err != nil {
				var waitErr *ratelimit.WaitError
				if errors.As(err, &waitErr) {
					return &model.SendError{Kind: model.KindRateLimited, RetryAfter: waitErr.Remaining, Err: err}
				}
				return err
			}
		}
		if err := s.pace.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		if wait := retry.RetryAfter(err); wait > 0 && s.contacts != nil {
			s.contacts.Hold(key, wait)
		}
		return err
	}

	var err error
	if s.retrier != nil {
		err = s.retrier.Do(ctx, op, attempt)
	} else {
		err = attempt(ctx)
	}
	if err != nil {
		s.logger.Warn("outreach step failed",
			"step", name,
			"contact", c.Address,
			"kind", model.SendErrorKindOf(err).String(),
			"error", err,
		)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Sender) attachmentAvailable() bool {
	if s.content.AttachmentPath == "" {
		return false
	}
	info, err := os.Stat(s.content.AttachmentPath)
	if err != nil {
		s.logger.Warn("attachment unavailable, sending fallback text", "path", s.content.AttachmentPath, "error", err)
		return false
	}
	return !info.IsDir()
}
