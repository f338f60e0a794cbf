package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/amishk599/jobrelay/internal/model"
)

// Fingerprint returns the identity of a message: the first 32 hex characters of
// the SHA-256 of its trimmed, whitespace-collapsed text.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:32]
}

// RecordOpportunity stores the message if its fingerprint is new and returns the
// fingerprint either way. An existing row is never modified.
func (s *SQLiteStore) RecordOpportunity(ctx context.Context, text string, meta model.SourceMeta, score float64, contacts model.Contacts) (string, error) {
	fp := Fingerprint(text)

	contactsJSON, err := json.Marshal(contacts)
	if err != nil {
		return "", fmt.Errorf("encoding contacts for %s: %w", fp, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO opportunities (fingerprint, text, source_channel, source_message_id, score, contacts_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO NOTHING`,
		fp, text, meta.Channel, meta.MessageID, score, string(contactsJSON), s.timestamp(),
	)
	if err != nil {
		return "", fmt.Errorf("recording opportunity %s: %w", fp, err)
	}
	return fp, nil
}

// GetByFingerprint returns the stored opportunity or model.ErrNotFound.
func (s *SQLiteStore) GetByFingerprint(ctx context.Context, fingerprint string) (model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, text, source_channel, source_message_id, score, contacts_json, created_at
		 FROM opportunities WHERE fingerprint = ?`, fingerprint)

	opp, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", fingerprint, model.ErrNotFound)
	}
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("loading opportunity %s: %w", fingerprint, err)
	}
	return opp, nil
}

// ListRecent returns up to limit opportunities, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, text, source_channel, source_message_id, score, contacts_json, created_at
		 FROM opportunities ORDER BY created_at DESC, fingerprint LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing opportunities: %w", err)
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning opportunity: %w", err)
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing opportunities: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(r rowScanner) (model.Opportunity, error) {
	var (
		opp          model.Opportunity
		contactsJSON string
		createdAt    string
	)
	if err := r.Scan(&opp.Fingerprint, &opp.Text, &opp.SourceChannel, &opp.SourceMessageID,
		&opp.Score, &contactsJSON, &createdAt); err != nil {
		return model.Opportunity{}, err
	}
	if err := json.Unmarshal([]byte(contactsJSON), &opp.Contacts); err != nil {
		return model.Opportunity{}, fmt.Errorf("decoding contacts: %w", err)
	}
	opp.CreatedAt = parseTime(createdAt)
	return opp, nil
}
