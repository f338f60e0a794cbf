package store

import (
	"context"
	"fmt"
	"time"

	"github.com/amishk599/jobrelay/internal/model"
)

// WasRecentlySent reports whether the contact received an outreach send within
// the cooldown, for any opportunity.
func (s *SQLiteStore) WasRecentlySent(ctx context.Context, contact string, cooldown time.Duration) (bool, error) {
	key := model.NormalizeContact(contact)
	cutoff := formatTime(s.now().Add(-cooldown))

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM delivery_records WHERE normalized_contact = ? AND sent_at > ?)`,
		key, cutoff,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking cooldown for %s: %w", key, err)
	}
	return exists == 1, nil
}

// RecordSent appends a delivery record. Call it only after a confirmed send.
func (s *SQLiteStore) RecordSent(ctx context.Context, contact, fingerprint string) error {
	key := model.NormalizeContact(contact)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_records (normalized_contact, opportunity_fingerprint, sent_at) VALUES (?, ?, ?)`,
		key, fingerprint, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("recording delivery to %s: %w", key, err)
	}
	return nil
}

// RecentDeliveries returns up to limit delivery records, newest first.
func (s *SQLiteStore) RecentDeliveries(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_contact, opportunity_fingerprint, sent_at
		 FROM delivery_records ORDER BY sent_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var out []model.DeliveryRecord
	for rows.Next() {
		var (
			rec    model.DeliveryRecord
			sentAt string
		)
		if err := rows.Scan(&rec.NormalizedContact, &rec.OpportunityFingerprint, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		rec.SentAt = parseTime(sentAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return out, nil
}

// DeliveriesFor returns every delivery recorded against an opportunity.
func (s *SQLiteStore) DeliveriesFor(ctx context.Context, fingerprint string) ([]model.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_contact, opportunity_fingerprint, sent_at
		 FROM delivery_records WHERE opportunity_fingerprint = ? ORDER BY id`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries for %s: %w", fingerprint, err)
	}
	defer rows.Close()

	var out []model.DeliveryRecord
	for rows.Next() {
		var (
			rec    model.DeliveryRecord
			sentAt string
		)
		if err := rows.Scan(&rec.NormalizedContact, &rec.OpportunityFingerprint, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		rec.SentAt = parseTime(sentAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
