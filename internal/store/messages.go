package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// SaveMessages upserts a batch of ingested messages. Re-ingesting the same
// message ID is harmless; the latest copy wins.
func (s *Store) SaveMessages(msgs []*models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO messages
		(id, project_id, channel, thread_id, sender, text, ts, mentions, is_dm, is_urgent, is_blocker, ingested_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		mentions, err := json.Marshal(m.Mentions)
		if err != nil {
			return fmt.Errorf("failed to marshal mentions for %s: %w", m.ID, err)
		}
		_, err = stmt.Exec(
			m.ID, m.ProjectID, m.Channel,
			sql.NullString{String: m.ThreadID, Valid: m.ThreadID != ""},
			m.Sender, m.Text, m.Timestamp.UnixMilli(), string(mentions),
			boolToInt(m.IsDM), boolToInt(m.IsUrgent), boolToInt(m.IsBlocker), now,
		)
		if err != nil {
			return fmt.Errorf("failed to save message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadMessagesSince returns messages with timestamps in [since, now),
// oldest first.
func (s *Store) LoadMessagesSince(since time.Time) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
	SELECT id, project_id, channel, thread_id, sender, text, ts, mentions, is_dm, is_urgent, is_blocker
	FROM messages WHERE ts >= ? ORDER BY ts ASC`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var threadID sql.NullString
		var ts int64
		var mentions string
		var isDM, isUrgent, isBlocker int
		err := rows.Scan(&m.ID, &m.ProjectID, &m.Channel, &threadID, &m.Sender, &m.Text,
			&ts, &mentions, &isDM, &isUrgent, &isBlocker)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if threadID.Valid {
			m.ThreadID = threadID.String
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		if err := json.Unmarshal([]byte(mentions), &m.Mentions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mentions for %s: %w", m.ID, err)
		}
		m.IsDM = isDM != 0
		m.IsUrgent = isUrgent != 0
		m.IsBlocker = isBlocker != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PruneMessagesBefore deletes messages older than the cutoff and returns
// the number removed.
func (s *Store) PruneMessagesBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM messages WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
