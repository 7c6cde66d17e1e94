package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// CommitRun persists a run's outputs atomically: the updated phase states
// and the generated digest either both land or neither does.
func (s *Store) CommitRun(states []*models.PhaseState, digest *models.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := saveStatesTx(tx, states, time.Now()); err != nil {
		return err
	}
	if err := saveDigestTx(tx, digest); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveDigest persists a digest on its own, outside a run commit.
func (s *Store) SaveDigest(digest *models.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := saveDigestTx(tx, digest); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestDigest returns the most recent digest for a user, or nil when the
// user has none.
func (s *Store) LatestDigest(userID string) (*models.Digest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRow(`
	SELECT payload FROM digests WHERE user_id = ?
	ORDER BY generated_at DESC LIMIT 1`, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest digest: %w", err)
	}

	d := &models.Digest{}
	if err := json.Unmarshal([]byte(payload), d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal digest: %w", err)
	}
	return d, nil
}

// LogRun appends a run outcome to the run log.
func (s *Store) LogRun(userID, digestID, status, detail string, started, finished time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
	INSERT INTO run_log (user_id, digest_id, status, detail, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		userID,
		sql.NullString{String: digestID, Valid: digestID != ""},
		status,
		sql.NullString{String: detail, Valid: detail != ""},
		started.UnixMilli(), finished.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to log run: %w", err)
	}
	return nil
}

func saveDigestTx(tx *sql.Tx, digest *models.Digest) error {
	payload, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("failed to marshal digest: %w", err)
	}
	_, err = tx.Exec(`
	INSERT OR REPLACE INTO digests (id, user_id, generated_at, payload)
	VALUES (?, ?, ?, ?)`,
		digest.ID, digest.UserID, digest.GeneratedAt.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save digest: %w", err)
	}
	return nil
}
