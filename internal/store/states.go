package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// LoadPhaseStates returns all phase states for a user, keyed by project ID.
func (s *Store) LoadPhaseStates(userID string) (map[string]*models.PhaseState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
	SELECT user_id, project_id, phase, last_contributed, messages_past_week, is_override
	FROM phase_states WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load phase states: %w", err)
	}
	defer rows.Close()

	states := map[string]*models.PhaseState{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states[st.ProjectID] = st
	}
	return states, rows.Err()
}

// GetPhaseState returns one (user, project) state, or nil when absent.
func (s *Store) GetPhaseState(userID, projectID string) (*models.PhaseState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
	SELECT user_id, project_id, phase, last_contributed, messages_past_week, is_override
	FROM phase_states WHERE user_id = ? AND project_id = ?`, userID, projectID)

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SavePhaseStates upserts the given states.
func (s *Store) SavePhaseStates(states []*models.PhaseState) error {
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
	return tx.Commit()
}

// SetOverride pins a (user, project) phase and freezes automatic
// transitions until cleared. Creates the state if it does not exist.
func (s *Store) SetOverride(userID, projectID string, phase models.Phase) (*models.PhaseState, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("invalid phase %q", phase)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.db.Exec(`
	INSERT INTO phase_states (user_id, project_id, phase, last_contributed, messages_past_week, is_override, updated_at)
	VALUES (?, ?, ?, ?, 0, 1, ?)
	ON CONFLICT(user_id, project_id) DO UPDATE SET
		phase = excluded.phase,
		is_override = 1,
		updated_at = excluded.updated_at`,
		userID, projectID, string(phase), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to set override: %w", err)
	}

	row := s.db.QueryRow(`
	SELECT user_id, project_id, phase, last_contributed, messages_past_week, is_override
	FROM phase_states WHERE user_id = ? AND project_id = ?`, userID, projectID)
	return scanState(row)
}

// ClearOverride resumes automatic transitions from the current phase.
// Returns false when no state exists for the pair.
func (s *Store) ClearOverride(userID, projectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
	UPDATE phase_states SET is_override = 0, updated_at = ?
	WHERE user_id = ? AND project_id = ?`,
		time.Now().UnixMilli(), userID, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to clear override: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func saveStatesTx(tx *sql.Tx, states []*models.PhaseState, now time.Time) error {
	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO phase_states
		(user_id, project_id, phase, last_contributed, messages_past_week, is_override, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare state upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		_, err := stmt.Exec(
			st.UserID, st.ProjectID, string(st.Phase),
			st.LastContributed.UnixMilli(), st.MessagesPastWeek,
			boolToInt(st.IsOverride), now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to save state %s/%s: %w", st.UserID, st.ProjectID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*models.PhaseState, error) {
	st := &models.PhaseState{}
	var phase string
	var lastContributed int64
	var override int
	err := row.Scan(&st.UserID, &st.ProjectID, &phase, &lastContributed, &st.MessagesPastWeek, &override)
	if err != nil {
		return nil, err
	}
	st.Phase = models.Phase(phase)
	st.LastContributed = time.UnixMilli(lastContributed).UTC()
	st.IsOverride = override != 0
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
