package model

import (
	"context"
	"time"
)

// Opportunity is one scanned chat message, keyed by the fingerprint of its text.
type Opportunity struct {
	Fingerprint     string
	Text            string
	SourceChannel   string
	SourceMessageID string
	Score           float64 // classifier confidence, 0.0–1.0
	Contacts        Contacts
	CreatedAt       time.Time
}

// SourceMeta identifies where a message came from.
type SourceMeta struct {
	Channel   string
	MessageID string
}

// Contacts is the set of contact points extracted from a message.
type Contacts struct {
	Emails  []string `json:"emails"`
	Handles []string `json:"handles"` // always "@name"
	Links   []string `json:"links"`
}

// Empty reports whether there is nothing to send to.
func (c Contacts) Empty() bool {
	return len(c.Emails) == 0 && len(c.Handles) == 0
}

// ContactKind says which transport reaches a contact.
type ContactKind string

const (
	ContactEmail  ContactKind = "email"
	ContactHandle ContactKind = "telegram"
)

// Contact is a single recipient of an outreach send.
type Contact struct {
	Kind    ContactKind
	Address string // "hr@co.com" or "@hr_team"
}

// Normalized returns the identity used by the delivery ledger.
func (c Contact) Normalized() string {
	return NormalizeContact(c.Address)
}

// Sendable flattens emails and handles into outreach targets, emails first.
func (c Contacts) Sendable() []Contact {
	out := make([]Contact, 0, len(c.Emails)+len(c.Handles))
	for _, e := range c.Emails {
		out = append(out, Contact{Kind: ContactEmail, Address: e})
	}
	for _, h := range c.Handles {
		out = append(out, Contact{Kind: ContactHandle, Address: h})
	}
	return out
}

// DeliveryRecord is one successful outreach send.
type DeliveryRecord struct {
	NormalizedContact      string
	OpportunityFingerprint string
	SentAt                 time.Time
}

// NotificationStatus is the operator decision on a notification.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusConfirmed NotificationStatus = "confirmed"
	StatusSkipped   NotificationStatus = "skipped"
)

// Terminal reports whether no further transition is allowed.
func (s NotificationStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusSkipped
}

// NotificationRecord is one interactive confirmation request sent to an operator.
type NotificationRecord struct {
	OpportunityFingerprint string
	NotificationMessageID  string
	TargetOperator         string
	Status                 NotificationStatus
	CreatedAt              time.Time
}

// Verdict is the classifier output. Label 1 means "job offer".
type Verdict struct {
	Label int
	Score float64
}

// Positive reports whether the classifier labelled the text a job offer.
func (v Verdict) Positive() bool { return v.Label == 1 }

// ActionKind is one of the interactive buttons on a notification.
type ActionKind string

const (
	ActionConfirm  ActionKind = "confirm"
	ActionSkip     ActionKind = "skip"
	ActionFullText ActionKind = "full"
)

// Action is a button attached to an interactive message.
type Action struct {
	Kind        ActionKind
	Label       string
	Fingerprint string
}

// OperatorAction is a button press delivered by the transport.
type OperatorAction struct {
	Kind         ActionKind
	Fingerprint  string
	Operator     string // chat the notification lives in
	MessageID    string // notification message id, the ledger join key
	OriginalText string // current text of the notification, if the transport knows it
	CallbackID   string // transport token for acknowledging the press
}

// Classifier labels raw text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// PageFetcher returns the body of a linked page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Messenger is the outbound chat transport.
type Messenger interface {
	SendText(ctx context.Context, recipient, text string) error
	SendFile(ctx context.Context, recipient, path, caption string) error
	SendInteractive(ctx context.Context, recipient, text string, actions [][]Action) (string, error)
	EditMessage(ctx context.Context, recipient, messageID, text string, actions [][]Action) error
}

// Acknowledger answers a button press with a short toast. Transports without
// callback acknowledgement simply don't implement it.
type Acknowledger interface {
	Acknowledge(ctx context.Context, callbackID, text string, alert bool) error
}

// OpportunityStore persists scanned messages.
type OpportunityStore interface {
	RecordOpportunity(ctx context.Context, text string, meta SourceMeta, score float64, contacts Contacts) (string, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (Opportunity, error)
}

// DeliveryLedger tracks outreach sends for the cooldown check.
type DeliveryLedger interface {
	WasRecentlySent(ctx context.Context, normalizedContact string, cooldown time.Duration) (bool, error)
	RecordSent(ctx context.Context, normalizedContact, fingerprint string) error
}

// NotificationLedger tracks operator notifications and their status.
type NotificationLedger interface {
	HasNotified(ctx context.Context, fingerprint, operator string) (bool, error)
	RecordNotification(ctx context.Context, fingerprint, messageID, operator string) error
	SetStatus(ctx context.Context, messageID string, status NotificationStatus) error
	PendingCount(ctx context.Context) (int, error)
}
