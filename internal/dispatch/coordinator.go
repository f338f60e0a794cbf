// Package dispatch turns classified messages into outreach sends and operator
// notifications, and applies operator decisions.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobrelay/internal/lock"
	"github.com/amishk599/jobrelay/internal/metrics"
	"github.com/amishk599/jobrelay/internal/model"
)

// ContactExtractor finds contact points in message text.
type ContactExtractor interface {
	Extract(ctx context.Context, text string) model.Contacts
}

// ContactFilter removes blocklisted and duplicate contacts.
type ContactFilter interface {
	Apply(c model.Contacts) model.Contacts
}

// Sender delivers outreach content to one contact.
type Sender interface {
	Send(ctx context.Context, c model.Contact) error
}

// Outcome says how far an incoming message got through the pipeline.
type Outcome string

const (
	OutcomeEmpty           Outcome = "empty"
	OutcomeBelowThreshold  Outcome = "below_threshold"
	OutcomeAlreadyNotified Outcome = "already_notified"
	OutcomeDispatched      Outcome = "dispatched" // sends done, no operator notified
	OutcomeNotified        Outcome = "notified"
)

// Failure is one contact the outreach could not reach.
type Failure struct {
	Contact model.Contact
	Kind    model.SendErrorKind
	Err     error
}

// Result describes what HandleIncomingMessage did.
type Result struct {
	Fingerprint  string
	Outcome      Outcome
	Contacts     model.Contacts
	SentCount    int
	Skipped      []model.Contact // inside the cooldown window
	Failures     []Failure
	Notified     []string // operators
	NotifyErrors []error
	// LedgerErrors are delivery records that could not be written after a
	// successful send. The cooldown for those contacts is held in memory.
	LedgerErrors []error
}

// Config holds the dispatch policy.
type Config struct {
	Threshold       float64
	Cooldown        time.Duration
	Operators       []string
	SendConcurrency int
	MaxMessageRunes int
	ExcerptRunes    int
	ContactsShown   int
	FailuresShown   int
}

func (c *Config) applyDefaults() {
	if c.SendConcurrency <= 0 {
		c.SendConcurrency = 4
	}
	if c.MaxMessageRunes <= 0 {
		c.MaxMessageRunes = 4096
	}
	if c.ExcerptRunes <= 0 {
		c.ExcerptRunes = 500
	}
	if c.ContactsShown <= 0 {
		c.ContactsShown = 3
	}
	if c.FailuresShown <= 0 {
		c.FailuresShown = 10
	}
}

// Coordinator runs the pipeline. The store owns all state and keyed locks
// serialize check-then-act sequences. The only in-process state is the set of
// sends whose delivery record failed to persist.
type Coordinator struct {
	extractor     ContactExtractor
	filter        ContactFilter
	opportunities model.OpportunityStore
	deliveries    model.DeliveryLedger
	notifications model.NotificationLedger
	sender        Sender
	messenger     model.Messenger
	locker        lock.Locker
	metrics       *metrics.Metrics
	cfg           Config
	logger        *slog.Logger

	mu         sync.Mutex
	unrecorded map[string]unrecordedSend // normalized contact
}

type unrecordedSend struct {
	fingerprint string
	sentAt      time.Time
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Extractor     ContactExtractor
	Filter        ContactFilter
	Opportunities model.OpportunityStore
	Deliveries    model.DeliveryLedger
	Notifications model.NotificationLedger
	Sender        Sender
	Messenger     model.Messenger
	Locker        lock.Locker
	Metrics       *metrics.Metrics
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	return &Coordinator{
		extractor:     deps.Extractor,
		filter:        deps.Filter,
		opportunities: deps.Opportunities,
		deliveries:    deps.Deliveries,
		notifications: deps.Notifications,
		sender:        deps.Sender,
		messenger:     deps.Messenger,
		locker:        deps.Locker,
		metrics:       deps.Metrics,
		cfg:           cfg,
		logger:        logger,
		unrecorded:    make(map[string]unrecordedSend),
	}
}

// HandleIncomingMessage persists the message, and when the verdict clears the
// threshold, sends outreach to every contact outside the cooldown and notifies
// each operator that has not seen this opportunity yet.
func (c *Coordinator) HandleIncomingMessage(ctx context.Context, text string, meta model.SourceMeta, verdict model.Verdict) (res Result, err error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil && err == nil {
			c.metrics.MessagesProcessed.WithLabelValues(string(res.Outcome)).Inc()
			c.metrics.ObserveDispatch(start)
		}
	}()

	if strings.TrimSpace(text) == "" {
		return Result{Outcome: OutcomeEmpty}, nil
	}

	contacts := c.filter.Apply(c.extractor.Extract(ctx, text))

	fp, err := c.opportunities.RecordOpportunity(ctx, text, meta, verdict.Score, contacts)
	if err != nil {
		return Result{}, fmt.Errorf("persisting opportunity: %w", err)
	}
	res = Result{Fingerprint: fp, Contacts: contacts}

	if !verdict.Positive() || verdict.Score < c.cfg.Threshold {
		res.Outcome = OutcomeBelowThreshold
		c.logger.Debug("message below threshold", "fingerprint", fp, "score", verdict.Score, "label", verdict.Label)
		return res, nil
	}

	unlock, err := c.locker.Lock(ctx, "opportunity:"+fp)
	if err != nil {
		return res, fmt.Errorf("locking opportunity %s: %w", fp, err)
	}
	defer unlock()

	pending, err := c.pendingOperators(ctx, fp)
	if err != nil {
		return res, err
	}
	if len(c.cfg.Operators) > 0 && len(pending) == 0 {
		res.Outcome = OutcomeAlreadyNotified
		c.logger.Debug("opportunity already notified", "fingerprint", fp)
		return res, nil
	}

	c.logger.Info("job opportunity detected",
		"fingerprint", fp,
		"score", verdict.Score,
		"channel", meta.Channel,
		"emails", len(contacts.Emails),
		"handles", len(contacts.Handles),
	)

	c.sendAll(ctx, fp, contacts, &res)

	summary := c.composeSummary(meta, text, verdict.Score, res)
	actions := NotificationActions(fp)
	for _, op := range pending {
		if err := c.notify(ctx, fp, op, summary, actions); err != nil {
			res.NotifyErrors = append(res.NotifyErrors, err)
			continue
		}
		res.Notified = append(res.Notified, op)
	}

	if len(res.Notified) > 0 {
		res.Outcome = OutcomeNotified
	} else {
		res.Outcome = OutcomeDispatched
	}
	return res, nil
}

func (c *Coordinator) pendingOperators(ctx context.Context, fp string) ([]string, error) {
	var pending []string
	for _, op := range c.cfg.Operators {
		notified, err := c.notifications.HasNotified(ctx, fp, op)
		if err != nil {
			return nil, fmt.Errorf("checking notification state: %w", err)
		}
		if !notified {
			pending = append(pending, op)
		}
	}
	return pending, nil
}

// sendAll reaches every sendable contact concurrently. Failures are collected
// on res and never abort the batch.
func (c *Coordinator) sendAll(ctx context.Context, fp string, contacts model.Contacts, res *Result) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.cfg.SendConcurrency)

	for _, contact := range contacts.Sendable() {
		g.Go(func() error {
			sent, ledgerErr, err := c.sendOne(ctx, fp, contact)

			mu.Lock()
			defer mu.Unlock()
			if ledgerErr != nil {
				res.LedgerErrors = append(res.LedgerErrors, ledgerErr)
			}
			switch {
			case err != nil:
				res.Failures = append(res.Failures, Failure{Contact: contact, Kind: model.SendErrorKindOf(err), Err: err})
				c.countSend(contact, "failed")
			case sent:
				res.SentCount++
				c.countSend(contact, "sent")
			default:
				res.Skipped = append(res.Skipped, contact)
				c.countSend(contact, "skipped")
			}
			return nil
		})
	}
	g.Wait()
}

// sendOne holds the contact lock across the cooldown check, the send and the
// ledger write, so two opportunities sharing a contact cannot both send. A
// failed ledger write after a successful send is returned as ledgerErr; the
// send still counts and the contact stays in cooldown in memory until the
// record is written. A partial delivery is recorded and reported as a failure.
func (c *Coordinator) sendOne(ctx context.Context, fp string, contact model.Contact) (sent bool, ledgerErr, err error) {
	key := contact.Normalized()
	unlock, err := c.locker.Lock(ctx, "contact:"+key)
	if err != nil {
		return false, nil, fmt.Errorf("locking contact %s: %w", key, err)
	}
	defer unlock()

	if c.heldUnrecorded(ctx, key) {
		c.logger.Debug("contact in cooldown (unrecorded send)", "contact", contact.Address, "fingerprint", fp)
		return false, nil, nil
	}

	recent, err := c.deliveries.WasRecentlySent(ctx, key, c.cfg.Cooldown)
	if err != nil {
		return false, nil, err
	}
	if recent {
		c.logger.Debug("contact in cooldown", "contact", contact.Address, "fingerprint", fp)
		return false, nil, nil
	}

	if err := c.sender.Send(ctx, contact); err != nil {
		if !errors.Is(err, model.ErrPartialDelivery) {
			return false, nil, err
		}
		// The contact was reached, so the cooldown applies even though the send failed.
		c.logger.Warn("outreach partially delivered", "contact", contact.Address, "fingerprint", fp, "error", err)
		return false, c.record(ctx, key, fp, contact), err
	}
	c.logger.Info("outreach sent", "contact", contact.Address, "kind", contact.Kind, "fingerprint", fp)
	return true, c.record(ctx, key, fp, contact), nil
}

// record writes the delivery, holding it in memory when the write fails.
func (c *Coordinator) record(ctx context.Context, key, fp string, contact model.Contact) error {
	if err := c.deliveries.RecordSent(ctx, key, fp); err != nil {
		c.logger.Error("recording delivery failed", "contact", contact.Address, "fingerprint", fp, "error", err)
		c.mu.Lock()
		c.unrecorded[key] = unrecordedSend{fingerprint: fp, sentAt: time.Now()}
		c.mu.Unlock()
		return fmt.Errorf("recording delivery to %s: %w", contact.Address, err)
	}
	return nil
}

// heldUnrecorded reports whether key has a send inside the cooldown that the
// ledger does not know about. It retries the write first and forgets the entry
// once the write succeeds or the cooldown has passed. Callers hold the contact lock.
func (c *Coordinator) heldUnrecorded(ctx context.Context, key string) bool {
	c.mu.Lock()
	u, ok := c.unrecorded[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	if time.Since(u.sentAt) >= c.cfg.Cooldown {
		c.forgetUnrecorded(key)
		return false
	}
	if err := c.deliveries.RecordSent(ctx, key, u.fingerprint); err != nil {
		c.logger.Warn("delivery record still failing", "contact", key, "fingerprint", u.fingerprint, "error", err)
		return true
	}
	c.forgetUnrecorded(key)
	// Written now, so the ledger check that follows sees it.
	return false
}

func (c *Coordinator) forgetUnrecorded(key string) {
	c.mu.Lock()
	delete(c.unrecorded, key)
	c.mu.Unlock()
}

func (c *Coordinator) notify(ctx context.Context, fp, operator, text string, actions [][]model.Action) error {
	messageID, err := c.messenger.SendInteractive(ctx, operator, text, actions)
	if err != nil {
		c.logger.Error("operator notification failed", "operator", operator, "fingerprint", fp, "error", err)
		c.countNotification("failed")
		return fmt.Errorf("notifying %s: %w", operator, err)
	}
	if err := c.notifications.RecordNotification(ctx, fp, messageID, operator); err != nil {
		c.logger.Error("recording notification failed", "operator", operator, "fingerprint", fp, "error", err)
		c.countNotification("failed")
		return fmt.Errorf("recording notification for %s: %w", operator, err)
	}
	c.countNotification("sent")
	return nil
}

func (c *Coordinator) countSend(contact model.Contact, result string) {
	if c.metrics != nil {
		c.metrics.OutreachSends.WithLabelValues(string(contact.Kind), result).Inc()
	}
}

func (c *Coordinator) countNotification(result string) {
	if c.metrics != nil {
		c.metrics.Notifications.WithLabelValues(result).Inc()
	}
}
