package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishk599/jobrelay/internal/model"
)

const genericFailureNotice = "⚠️ Something went wrong while handling that action. Please try again later."

// HandleOperatorAction applies a button press. Confirm and skip move the
// notification out of pending and edit it; full text resends the stored
// message. Any failure, including a panic, ends with a notice to the operator.
func (c *Coordinator) HandleOperatorAction(ctx context.Context, a model.OperatorAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("operator action panicked", "action", a.Kind, "fingerprint", a.Fingerprint, "panic", r)
			err = fmt.Errorf("operator action %s panicked: %v", a.Kind, r)
		}
		result := "ok"
		if err != nil {
			result = "error"
			c.failureNotice(ctx, a)
		}
		if c.metrics != nil {
			c.metrics.OperatorActions.WithLabelValues(string(a.Kind), result).Inc()
		}
	}()

	switch a.Kind {
	case model.ActionConfirm:
		return c.resolve(ctx, a, model.StatusConfirmed)
	case model.ActionSkip:
		return c.resolve(ctx, a, model.StatusSkipped)
	case model.ActionFullText:
		return c.sendFullText(ctx, a)
	default:
		return fmt.Errorf("unknown operator action %q", a.Kind)
	}
}

func (c *Coordinator) resolve(ctx context.Context, a model.OperatorAction, status model.NotificationStatus) error {
	err := c.notifications.SetStatus(ctx, a.MessageID, status)
	switch {
	case errors.Is(err, model.ErrAlreadyResolved):
		c.logger.Info("notification already resolved", "message_id", a.MessageID, "requested", status)
		c.acknowledge(ctx, a, "This opportunity was already handled.", true)
		return nil
	case errors.Is(err, model.ErrNotFound):
		c.acknowledge(ctx, a, "Unknown notification.", true)
		return nil
	case err != nil:
		return fmt.Errorf("setting status %s on %s: %w", status, a.MessageID, err)
	}

	c.logger.Info("notification resolved", "message_id", a.MessageID, "fingerprint", a.Fingerprint, "status", status)

	text := a.OriginalText
	if text == "" {
		text = c.recompose(ctx, a.Fingerprint)
	}
	if err := c.messenger.EditMessage(ctx, a.Operator, a.MessageID, resolvedText(text, status), fullTextOnly(a.Fingerprint)); err != nil {
		// The status change stands even if the edit fails.
		c.logger.Warn("editing notification failed", "message_id", a.MessageID, "error", err)
	}

	if status == model.StatusConfirmed {
		c.acknowledge(ctx, a, "Confirmed", false)
	} else {
		c.acknowledge(ctx, a, "Skipped", false)
	}
	return nil
}

// recompose rebuilds a minimal notification body when the transport did not
// hand back the original text.
func (c *Coordinator) recompose(ctx context.Context, fp string) string {
	opp, err := c.opportunities.GetByFingerprint(ctx, fp)
	if err != nil {
		return "Job opportunity " + fp
	}
	return fmt.Sprintf("🔔 Job opportunity\nScore: %.2f\n\n%s", opp.Score, Excerpt(opp.Text, c.cfg.ExcerptRunes))
}

func (c *Coordinator) sendFullText(ctx context.Context, a model.OperatorAction) error {
	opp, err := c.opportunities.GetByFingerprint(ctx, a.Fingerprint)
	if errors.Is(err, model.ErrNotFound) {
		c.acknowledge(ctx, a, "This opportunity is no longer stored.", true)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading opportunity %s: %w", a.Fingerprint, err)
	}

	c.acknowledge(ctx, a, "", false)
	for _, chunk := range Chunk(opp.Text, c.cfg.MaxMessageRunes) {
		if err := c.messenger.SendText(ctx, a.Operator, chunk); err != nil {
			return fmt.Errorf("sending full text of %s: %w", a.Fingerprint, err)
		}
	}
	return nil
}

func (c *Coordinator) acknowledge(ctx context.Context, a model.OperatorAction, text string, alert bool) {
	ack, ok := c.messenger.(model.Acknowledger)
	if !ok || a.CallbackID == "" {
		return
	}
	if err := ack.Acknowledge(ctx, a.CallbackID, text, alert); err != nil {
		c.logger.Debug("acknowledging callback failed", "callback_id", a.CallbackID, "error", err)
	}
}

func (c *Coordinator) failureNotice(ctx context.Context, a model.OperatorAction) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("failure notice panicked", "panic", r)
		}
	}()
	if a.Operator == "" {
		return
	}
	if err := c.messenger.SendText(ctx, a.Operator, genericFailureNotice); err != nil {
		c.logger.Warn("sending failure notice failed", "operator", a.Operator, "error", err)
	}
}
