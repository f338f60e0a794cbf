package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/jobrelay/internal/model"
)

// HasNotified reports whether the operator already has a notification for the
// fingerprint, in any status.
func (s *SQLiteStore) HasNotified(ctx context.Context, fingerprint, operator string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE opportunity_fingerprint = ? AND target_operator = ?)`,
		fingerprint, operator,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking notification for %s/%s: %w", fingerprint, operator, err)
	}
	return exists == 1, nil
}

// RecordNotification stores a pending notification.
func (s *SQLiteStore) RecordNotification(ctx context.Context, fingerprint, messageID, operator string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (opportunity_fingerprint, notification_message_id, target_operator, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		fingerprint, messageID, operator, string(model.StatusPending), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("recording notification %s: %w", messageID, err)
	}
	return nil
}

// SetStatus moves a pending notification to confirmed or skipped. A terminal
// notification is left unchanged and model.ErrAlreadyResolved is returned.
func (s *SQLiteStore) SetStatus(ctx context.Context, messageID string, status model.NotificationStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("setting status %q: %w", status, model.ErrInvalidStatus)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ? WHERE notification_message_id = ? AND status = ?`,
		string(status), messageID, string(model.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("updating notification %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating notification %s: %w", messageID, err)
	}
	if n == 1 {
		return nil
	}

	rec, err := s.NotificationByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	return fmt.Errorf("notification %s is %s: %w", messageID, rec.Status, model.ErrAlreadyResolved)
}

// PendingCount returns the number of notifications awaiting a decision.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = ?`, string(model.StatusPending),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending notifications: %w", err)
	}
	return n, nil
}

// NotificationByMessageID returns the notification or model.ErrNotFound.
func (s *SQLiteStore) NotificationByMessageID(ctx context.Context, messageID string) (model.NotificationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT opportunity_fingerprint, notification_message_id, target_operator, status, created_at
		 FROM notifications WHERE notification_message_id = ?`, messageID)

	rec, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotificationRecord{}, fmt.Errorf("notification %s: %w", messageID, model.ErrNotFound)
	}
	if err != nil {
		return model.NotificationRecord{}, fmt.Errorf("loading notification %s: %w", messageID, err)
	}
	return rec, nil
}

// NotificationsFor returns every notification sent for an opportunity.
func (s *SQLiteStore) NotificationsFor(ctx context.Context, fingerprint string) ([]model.NotificationRecord, error) {
	return s.queryNotifications(ctx,
		`SELECT opportunity_fingerprint, notification_message_id, target_operator, status, created_at
		 FROM notifications WHERE opportunity_fingerprint = ? ORDER BY id`, fingerprint)
}

// ListPending returns pending notifications, oldest first.
func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]model.NotificationRecord, error) {
	return s.queryNotifications(ctx,
		`SELECT opportunity_fingerprint, notification_message_id, target_operator, status, created_at
		 FROM notifications WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(model.StatusPending), limit)
}

func (s *SQLiteStore) queryNotifications(ctx context.Context, query string, args ...any) ([]model.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []model.NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return out, nil
}

func scanNotification(r rowScanner) (model.NotificationRecord, error) {
	var (
		rec       model.NotificationRecord
		status    string
		createdAt string
	)
	if err := r.Scan(&rec.OpportunityFingerprint, &rec.NotificationMessageID, &rec.TargetOperator,
		&status, &createdAt); err != nil {
		return model.NotificationRecord{}, err
	}
	rec.Status = model.NotificationStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	return rec, nil
}
