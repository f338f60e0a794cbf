package store

import (
	"context"
	"fmt"
	"time"

	"github.com/amishk599/jobrelay/internal/model"
)

// Stats is a snapshot of the ledger totals.
type Stats struct {
	Opportunities    int                              `json:"opportunities"`
	Deliveries       int                              `json:"deliveries"`
	DistinctContacts int                              `json:"distinct_contacts"`
	Notifications    map[model.NotificationStatus]int `json:"notifications"`
	LastDeliveries   []model.DeliveryRecord           `json:"last_deliveries"`
}

// Stats returns totals and the five most recent deliveries.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Notifications: map[model.NotificationStatus]int{
		model.StatusPending:   0,
		model.StatusConfirmed: 0,
		model.StatusSkipped:   0,
	}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&st.Opportunities); err != nil {
		return Stats{}, fmt.Errorf("counting opportunities: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT normalized_contact) FROM delivery_records`,
	).Scan(&st.Deliveries, &st.DistinctContacts); err != nil {
		return Stats{}, fmt.Errorf("counting deliveries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notifications GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("counting notifications: %w", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("scanning notification counts: %w", err)
		}
		st.Notifications[model.NotificationStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("counting notifications: %w", err)
	}

	st.LastDeliveries, err = s.RecentDeliveries(ctx, 5)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Retention is the maximum age kept per table. A zero value keeps everything.
type Retention struct {
	Notifications time.Duration
	Deliveries    time.Duration
	Opportunities time.Duration
}

// CleanupResult counts the rows removed by Cleanup.
type CleanupResult struct {
	Notifications int64 `json:"notifications"`
	Deliveries    int64 `json:"deliveries"`
	Opportunities int64 `json:"opportunities"`
}

// Total returns the number of rows removed across all tables.
func (r CleanupResult) Total() int64 {
	return r.Notifications + r.Deliveries + r.Opportunities
}

// Cleanup deletes rows older than the retention windows in one transaction.
func (s *SQLiteStore) Cleanup(ctx context.Context, r Retention) (CleanupResult, error) {
	now := s.now()
	var res CleanupResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("starting cleanup: %w", err)
	}
	defer tx.Rollback()

	purge := func(table, column string, age time.Duration, n *int64) error {
		if age <= 0 {
			return nil
		}
		cutoff := formatTime(now.Add(-age))
		out, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s < ?", table, column), cutoff)
		if err != nil {
			return fmt.Errorf("cleaning up %s older than %v: %w", table, age, err)
		}
		*n, err = out.RowsAffected()
		return err
	}

	if err := purge("notifications", "created_at", r.Notifications, &res.Notifications); err != nil {
		return CleanupResult{}, err
	}
	if err := purge("delivery_records", "sent_at", r.Deliveries, &res.Deliveries); err != nil {
		return CleanupResult{}, err
	}
	if err := purge("opportunities", "created_at", r.Opportunities, &res.Opportunities); err != nil {
		return CleanupResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return CleanupResult{}, fmt.Errorf("committing cleanup: %w", err)
	}
	return res, nil
}
