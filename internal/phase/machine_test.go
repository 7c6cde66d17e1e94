package phase

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

var now = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func newTestMachine() *Machine {
	return NewMachine(DefaultConfig(), zerolog.New(os.Stderr))
}

func state(phase models.Phase, lastContributed time.Time, weekly int) *models.PhaseState {
	return &models.PhaseState{
		UserID:           "alice",
		ProjectID:        "pcb",
		Phase:            phase,
		LastContributed:  lastContributed,
		MessagesPastWeek: weekly,
	}
}

func msg(id, sender string, ts time.Time, opts ...func(*models.Message)) *models.Message {
	m := &models.Message{
		ID:        id,
		ProjectID: "pcb",
		Sender:    sender,
		Text:      "update on the pcb layout",
		Timestamp: ts,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func mentions(users ...string) func(*models.Message) {
	return func(m *models.Message) { m.Mentions = users }
}

func blocker() func(*models.Message) {
	return func(m *models.Message) { m.IsBlocker = true }
}

func TestStaleStateBecomesDone(t *testing.T) {
	m := newTestMachine()

	for _, prior := range []models.Phase{models.PhaseActive, models.PhaseReview, models.PhaseBlocked} {
		s := state(prior, now.Add(-15*24*time.Hour), 0)
		updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, nil, nil, now)
		require.Len(t, updated, 1)
		assert.Equal(t, models.PhaseDone, updated[0].Phase, "prior phase %s", prior)
		require.Len(t, transitions, 1)
		assert.Equal(t, "stale", transitions[0].Rule)
	}
}

func TestStalenessOutranksLiveContribution(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseActive, now.Add(-20*24*time.Hour), 0)
	batch := []*models.Message{msg("m1", "alice", now.Add(-time.Hour))}

	updated, _ := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
	assert.Equal(t, models.PhaseDone, updated[0].Phase)
	// The fold still records the new contribution for the next pass.
	assert.Equal(t, now.Add(-time.Hour), updated[0].LastContributed)
}

func TestActiveWithQuietWeekMovesToReview(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseActive, now.Add(-3*24*time.Hour), 0)

	updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, nil, nil, now)
	assert.Equal(t, models.PhaseReview, updated[0].Phase)
	require.Len(t, transitions, 1)
	assert.Equal(t, "weekly_inactive", transitions[0].Rule)
}

func TestLiveContributionPromotesReviewAndBlocked(t *testing.T) {
	m := newTestMachine()
	batch := []*models.Message{msg("m1", "alice", now.Add(-time.Hour))}

	for _, prior := range []models.Phase{models.PhaseReview, models.PhaseBlocked} {
		s := state(prior, now.Add(-2*24*time.Hour), 2)
		updated, _ := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
		assert.Equal(t, models.PhaseActive, updated[0].Phase, "prior phase %s", prior)
	}
}

func TestMentionCountsAsLiveContribution(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseReview, now.Add(-2*24*time.Hour), 1)
	batch := []*models.Message{msg("m1", "bob", now.Add(-time.Hour), mentions("alice"))}

	updated, _ := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
	assert.Equal(t, models.PhaseActive, updated[0].Phase)
}

func TestUnchangedWhenNoRuleFires(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseReview, now.Add(-2*24*time.Hour), 1)

	updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, nil, nil, now)
	assert.Equal(t, models.PhaseReview, updated[0].Phase)
	assert.Empty(t, transitions)
}

func TestAnomalyReopensDoneToReviewNeverActive(t *testing.T) {
	m := newTestMachine()

	triggers := map[string]*models.Message{
		"mention":       msg("m1", "bob", now.Add(-time.Hour), mentions("alice")),
		"reply_to_user": msg("m2", "bob", now.Add(-time.Hour), func(mm *models.Message) { mm.IsReplyToUser = true }),
		"blocker":       msg("m3", "bob", now.Add(-time.Hour), blocker()),
	}

	for name, trigger := range triggers {
		s := state(models.PhaseDone, now.Add(-20*24*time.Hour), 0)
		batch := []*models.Message{trigger}
		updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
		assert.Equal(t, models.PhaseReview, updated[0].Phase, "trigger %s", name)
		require.Len(t, transitions, 1, "trigger %s", name)
		assert.Equal(t, "anomaly_reactivation", transitions[0].Rule)
	}
}

func TestDoneWithoutAnomalyStaysDone(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseDone, now.Add(-20*24*time.Hour), 0)
	batch := []*models.Message{msg("m1", "bob", now.Add(-time.Hour))}

	updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
	assert.Equal(t, models.PhaseDone, updated[0].Phase)
	assert.Empty(t, transitions)
}

func TestOverrideFreezesAllTransitions(t *testing.T) {
	m := newTestMachine()

	// Stale, mentioned, replied to and blocked all at once: nothing moves.
	s := state(models.PhaseActive, now.Add(-30*24*time.Hour), 0)
	ApplyOverride(s, models.PhaseActive)
	batch := []*models.Message{
		msg("m1", "bob", now.Add(-time.Hour), mentions("alice"), blocker()),
	}

	updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
	assert.Equal(t, models.PhaseActive, updated[0].Phase)
	assert.True(t, updated[0].IsOverride)
	assert.Empty(t, transitions)
}

func TestOverriddenDoneIgnoresAnomaly(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseDone, now.Add(-20*24*time.Hour), 0)
	ApplyOverride(s, models.PhaseDone)
	batch := []*models.Message{msg("m1", "bob", now.Add(-time.Hour), mentions("alice"))}

	updated, transitions := m.UpdateStates("alice", []*models.PhaseState{s}, batch, batch, now)
	assert.Equal(t, models.PhaseDone, updated[0].Phase)
	assert.Empty(t, transitions)
}

func TestClearOverrideResumesDetection(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseActive, now.Add(-30*24*time.Hour), 0)
	ApplyOverride(s, models.PhaseActive)
	ClearOverride(s)

	updated, _ := m.UpdateStates("alice", []*models.PhaseState{s}, nil, nil, now)
	assert.Equal(t, models.PhaseDone, updated[0].Phase)
}

func TestCreateState_AuthorStartsActive(t *testing.T) {
	m := newTestMachine()
	batch := []*models.Message{msg("m1", "alice", now.Add(-time.Hour))}

	updated, _ := m.UpdateStates("alice", nil, batch, batch, now)
	require.Len(t, updated, 1)
	assert.Equal(t, models.PhaseActive, updated[0].Phase)
	assert.Equal(t, "pcb", updated[0].ProjectID)
	assert.Equal(t, 1, updated[0].MessagesPastWeek)
}

func TestCreateState_MentionStartsActive(t *testing.T) {
	m := newTestMachine()
	batch := []*models.Message{msg("m1", "bob", now.Add(-time.Hour), mentions("alice"))}

	updated, _ := m.UpdateStates("alice", nil, batch, batch, now)
	require.Len(t, updated, 1)
	assert.Equal(t, models.PhaseActive, updated[0].Phase)
	assert.Equal(t, 0, updated[0].MessagesPastWeek)
}

func TestCreateState_ObserverStartsReview(t *testing.T) {
	m := newTestMachine()
	batch := []*models.Message{msg("m1", "bob", now.Add(-time.Hour))}

	updated, _ := m.UpdateStates("alice", nil, batch, batch, now)
	require.Len(t, updated, 1)
	assert.Equal(t, models.PhaseReview, updated[0].Phase)
}

func TestUnresolvedMessagesExcludedFromStateUpdates(t *testing.T) {
	m := newTestMachine()
	unresolved := msg("m1", "alice", now.Add(-time.Hour))
	unresolved.ProjectID = ""

	updated, _ := m.UpdateStates("alice", nil, []*models.Message{unresolved}, []*models.Message{unresolved}, now)
	assert.Empty(t, updated)
}

func TestFoldActivityRecomputesWeeklyCount(t *testing.T) {
	m := newTestMachine()
	s := state(models.PhaseActive, now.Add(-10*24*time.Hour), 7)

	// A 10-day-old contribution is inside the staleness window, so the
	// state survives; only two of the window messages are alice's and
	// within seven days.
	window := []*models.Message{
		msg("m1", "alice", now.Add(-2*24*time.Hour)),
		msg("m2", "alice", now.Add(-6*24*time.Hour)),
		msg("m3", "alice", now.Add(-9*24*time.Hour)), // outside the window
		msg("m4", "bob", now.Add(-time.Hour)),
	}

	updated, _ := m.UpdateStates("alice", []*models.PhaseState{s}, nil, window, now)
	assert.Equal(t, 2, updated[0].MessagesPastWeek)
	assert.Equal(t, now.Add(-2*24*time.Hour), updated[0].LastContributed)
}
