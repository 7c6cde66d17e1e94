// Package phase owns the (user, project) phase lifecycle. Once per digest
// run the machine decides whether each existing PhaseState transitions,
// whether a done state is reopened by an anomaly, and creates states for
// first-seen project associations.
package phase

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// Config holds the state machine thresholds.
type Config struct {
	// StalenessWindow is how long without a contribution before a
	// project relationship is considered done. Default 14 days.
	StalenessWindow time.Duration
	// ActivityWindow is the trailing window for the weekly message
	// count. Default 7 days.
	ActivityWindow time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		StalenessWindow: 14 * 24 * time.Hour,
		ActivityWindow:  7 * 24 * time.Hour,
	}
}

// Transition records one applied phase change for logging and metrics.
type Transition struct {
	Key  models.StateKey
	From models.Phase
	To   models.Phase
	Rule string
}

// Machine computes phase transitions and anomaly-driven reactivation.
type Machine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewMachine creates a phase state machine.
func NewMachine(cfg Config, logger zerolog.Logger) *Machine {
	return &Machine{
		cfg:    cfg,
		logger: logger.With().Str("component", "phase").Logger(),
	}
}

// rule is one step of the ordered automatic transition list. Rules are
// evaluated top to bottom with early exit; the first rule that fires wins.
type rule struct {
	name  string
	apply func(e *evalContext) (models.Phase, bool)
}

// evalContext carries everything a rule may inspect for one state. The
// state fields are the values from before this run's messages are folded in.
type evalContext struct {
	cfg   Config
	state *models.PhaseState
	batch []*models.Message // this run's new messages for the state's project
	now   time.Time
}

// Automatic transition rules, in priority order. Staleness outranks weekly
// inactivity, which outranks a live contribution: a 15-day-stale state goes
// done this pass even if the user posted in the batch, and recovers through
// rule 3 on the next pass once last_contributed reflects the new post.
var autoRules = []rule{
	{
		name: "stale",
		apply: func(e *evalContext) (models.Phase, bool) {
			if e.now.Sub(e.state.LastContributed) > e.cfg.StalenessWindow {
				return models.PhaseDone, true
			}
			return "", false
		},
	},
	{
		name: "weekly_inactive",
		apply: func(e *evalContext) (models.Phase, bool) {
			if e.state.Phase == models.PhaseActive && e.state.MessagesPastWeek == 0 {
				return models.PhaseReview, true
			}
			return "", false
		},
	},
	{
		name: "live_contribution",
		apply: func(e *evalContext) (models.Phase, bool) {
			for _, msg := range e.batch {
				if msg.Sender == e.state.UserID || msg.MentionsUser(e.state.UserID) {
					return models.PhaseActive, true
				}
			}
			return "", false
		},
	},
}

// anomalyTriggered reports whether a done state should be reopened.
// Any one trigger is sufficient: the user is mentioned in the project,
// a message replies to a thread the user posted in, or a blocker lands
// in a project the user has contribution history with. Blocker-to-user
// attribution itself is the extractor's concern; the machine filters on
// the flag.
func anomalyTriggered(state *models.PhaseState, batch []*models.Message) bool {
	for _, msg := range batch {
		if msg.MentionsUser(state.UserID) {
			return true
		}
		if msg.IsReplyToUser {
			return true
		}
		if msg.IsBlocker {
			return true
		}
	}
	return false
}

// UpdateStates applies one run's message batch to the user's full state set.
//
// batch is the run's new messages; window is the superset of messages in
// the trailing activity window, used to recompute weekly counts. Messages
// with no resolved project are excluded from state updates entirely.
// Returns the updated set (including newly created states) and the list of
// transitions applied.
func (m *Machine) UpdateStates(userID string, states []*models.PhaseState, batch, window []*models.Message, now time.Time) ([]*models.PhaseState, []Transition) {
	batchByProject := partitionByProject(batch)
	windowByProject := partitionByProject(window)

	var transitions []Transition
	updated := make([]*models.PhaseState, 0, len(states))
	seen := make(map[string]bool, len(states))

	for _, state := range states {
		seen[state.ProjectID] = true
		next, tr := m.updateOne(state, batchByProject[state.ProjectID], now)
		if tr != nil {
			transitions = append(transitions, *tr)
		}
		m.foldActivity(next, windowByProject[state.ProjectID], now)
		updated = append(updated, next)
	}

	// First-seen project associations get a fresh state.
	for projectID, msgs := range batchByProject {
		if seen[projectID] {
			continue
		}
		if created := m.CreateState(userID, projectID, msgs); created != nil {
			m.foldActivity(created, windowByProject[projectID], now)
			updated = append(updated, created)
			m.logger.Debug().
				Str("user", userID).
				Str("project", projectID).
				Str("phase", string(created.Phase)).
				Msg("created phase state")
		}
	}

	return updated, transitions
}

// updateOne runs the anomaly pass and the automatic rules for one state.
// Overridden states are returned untouched; anomaly detection is not
// evaluated for them at all.
func (m *Machine) updateOne(state *models.PhaseState, batch []*models.Message, now time.Time) (*models.PhaseState, *Transition) {
	next := *state

	if state.IsOverride {
		return &next, nil
	}

	// Anomaly reactivation runs before the automatic rules and only ever
	// moves done to review. When it fires, the automatic rules are skipped
	// for this pass: a reactivated project needs a fresh contribution on a
	// later pass to reach active.
	if state.Phase == models.PhaseDone {
		if anomalyTriggered(state, batch) {
			next.Phase = models.PhaseReview
			return &next, m.record(state, &next, "anomaly_reactivation")
		}
	}

	e := &evalContext{cfg: m.cfg, state: state, batch: batch, now: now}
	for _, r := range autoRules {
		if target, ok := r.apply(e); ok {
			if target == state.Phase {
				return &next, nil
			}
			next.Phase = target
			return &next, m.record(state, &next, r.name)
		}
	}

	return &next, nil
}

func (m *Machine) record(from, to *models.PhaseState, ruleName string) *Transition {
	m.logger.Info().
		Str("user", from.UserID).
		Str("project", from.ProjectID).
		Str("from", string(from.Phase)).
		Str("to", string(to.Phase)).
		Str("rule", ruleName).
		Msg("phase transition")
	return &Transition{
		Key:  from.Key(),
		From: from.Phase,
		To:   to.Phase,
		Rule: ruleName,
	}
}

// foldActivity recomputes the contribution counters after transitions are
// decided. LastContributed moves forward only on the user's own messages;
// MessagesPastWeek is recomputed from the window, never decremented
// incrementally.
func (m *Machine) foldActivity(state *models.PhaseState, window []*models.Message, now time.Time) {
	cutoff := now.Add(-m.cfg.ActivityWindow)
	count := 0
	for _, msg := range window {
		if msg.Sender != state.UserID {
			continue
		}
		if msg.Timestamp.After(cutoff) {
			count++
		}
		if msg.Timestamp.After(state.LastContributed) {
			state.LastContributed = msg.Timestamp
		}
	}
	state.MessagesPastWeek = count
}

// CreateState initializes a state when a user first encounters a project.
// The trigger is the earliest message involving the user (authored or
// mentioning them), falling back to the project's first message; the user
// starts active when involved, review as a pure observer.
func (m *Machine) CreateState(userID, projectID string, msgs []*models.Message) *models.PhaseState {
	if len(msgs) == 0 {
		return nil
	}

	trigger := msgs[0]
	for _, msg := range msgs {
		if msg.Sender == userID || msg.MentionsUser(userID) {
			trigger = msg
			break
		}
	}

	initial := models.PhaseReview
	count := 0
	if trigger.Sender == userID || trigger.MentionsUser(userID) {
		initial = models.PhaseActive
	}
	if trigger.Sender == userID {
		count = 1
	}

	return &models.PhaseState{
		UserID:           userID,
		ProjectID:        projectID,
		Phase:            initial,
		LastContributed:  trigger.Timestamp,
		MessagesPastWeek: count,
	}
}

// ApplyOverride sets an explicit phase and freezes automatic detection
// until the override is cleared. Manual assignment always wins; there is
// no time limit on the override's validity.
func ApplyOverride(state *models.PhaseState, target models.Phase) {
	state.Phase = target
	state.IsOverride = true
}

// ClearOverride re-enables automatic detection, keeping the current phase
// as the starting point for the next pass.
func ClearOverride(state *models.PhaseState) {
	state.IsOverride = false
}

func partitionByProject(msgs []*models.Message) map[string][]*models.Message {
	out := make(map[string][]*models.Message)
	for _, msg := range msgs {
		if msg.ProjectID == "" {
			continue
		}
		out[msg.ProjectID] = append(out[msg.ProjectID], msg)
	}
	return out
}
