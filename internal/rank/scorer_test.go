package rank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

var now = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	return NewScorer(DefaultConfig())
}

func testState(phase models.Phase, weekly int) *models.PhaseState {
	return &models.PhaseState{
		UserID:           "alice",
		ProjectID:        "pcb",
		Phase:            phase,
		LastContributed:  now.Add(-24 * time.Hour),
		MessagesPastWeek: weekly,
	}
}

func testMsg(age time.Duration, opts ...func(*models.Message)) *models.Message {
	m := &models.Message{
		ID:        "m1",
		ProjectID: "pcb",
		Sender:    "bob",
		Text:      "layout review ready",
		Timestamp: now.Add(-age),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func TestRecency_ExactHalfLifePoints(t *testing.T) {
	s := newTestScorer()

	assert.InDelta(t, 1.0, s.Recency(now, now), 1e-9)
	assert.InDelta(t, 0.5, s.Recency(now.Add(-8*time.Hour), now), 1e-9)
	assert.InDelta(t, 0.25, s.Recency(now.Add(-16*time.Hour), now), 1e-9)
	assert.InDelta(t, 0.125, s.Recency(now.Add(-24*time.Hour), now), 1e-9)
}

func TestRecency_MonotonicallyDecreasing(t *testing.T) {
	s := newTestScorer()
	prev := s.Recency(now, now)
	for h := 1; h <= 48; h++ {
		cur := s.Recency(now.Add(-time.Duration(h)*time.Hour), now)
		assert.Less(t, cur, prev, "at %dh", h)
		prev = cur
	}
}

func TestRecency_FutureTimestampClamped(t *testing.T) {
	s := newTestScorer()
	assert.Equal(t, 1.0, s.Recency(now.Add(time.Hour), now))
}

func TestDoneStateExcludedUnconditionally(t *testing.T) {
	s := newTestScorer()

	// Even an urgent blocker mentioning the user never surfaces.
	m := testMsg(time.Hour, func(mm *models.Message) {
		mm.IsUrgent = true
		mm.IsBlocker = true
		mm.Mentions = []string{"alice"}
	})
	scored, ok := s.Score(m, testState(models.PhaseDone, 10), "alice", now)
	assert.False(t, ok)
	assert.Nil(t, scored)
}

func TestBlockedNonBlockerGetsFloorScore(t *testing.T) {
	s := newTestScorer()
	scored, ok := s.Score(testMsg(time.Hour), testState(models.PhaseBlocked, 10), "alice", now)
	require.True(t, ok)
	assert.Equal(t, 0.1, scored.Score)
}

func TestBlockedBlockerScoresAtFullWeight(t *testing.T) {
	s := newTestScorer()
	m := testMsg(8*time.Hour, blockerOpt())
	scored, ok := s.Score(m, testState(models.PhaseBlocked, 0), "alice", now)
	require.True(t, ok)
	// recency 0.5, all boosts 1.0, blocked multiplier 1.0
	assert.InDelta(t, 0.5, scored.Score, 1e-9)
	assert.Equal(t, models.SectionUrgent, scored.Section)
}

func TestAbsentStateFixedLowConfidence(t *testing.T) {
	s := newTestScorer()
	m := testMsg(time.Hour)
	m.ProjectID = ""
	scored, ok := s.Score(m, nil, "alice", now)
	require.True(t, ok)
	assert.Equal(t, 0.3, scored.Score)
	assert.Equal(t, models.SectionActive, scored.Section)
}

func TestFullScoringFormula(t *testing.T) {
	s := newTestScorer()

	// Urgent message from one hour ago mentioning alice, active project
	// with ten weekly messages.
	m := testMsg(time.Hour, func(mm *models.Message) {
		mm.IsUrgent = true
		mm.Mentions = []string{"alice"}
	})
	scored, ok := s.Score(m, testState(models.PhaseActive, 10), "alice", now)
	require.True(t, ok)

	want := math.Pow(0.5, 1.0/8) * 1.5 * 1.8 * 1.5 * 1.0
	assert.InDelta(t, want, scored.Score, 1e-9)
	assert.Equal(t, models.SectionUrgent, scored.Section)
	assert.Equal(t, models.PhaseActive, scored.PhaseAtScoring)
}

func TestReviewPhaseHalvesScore(t *testing.T) {
	s := newTestScorer()
	m := testMsg(time.Hour, func(mm *models.Message) {
		mm.Mentions = []string{"alice"}
	})

	active, ok := s.Score(m, testState(models.PhaseActive, 0), "alice", now)
	require.True(t, ok)
	review, ok := s.Score(m, testState(models.PhaseReview, 0), "alice", now)
	require.True(t, ok)

	assert.InDelta(t, active.Score*0.5, review.Score, 1e-9)
	assert.Equal(t, models.SectionActive, active.Section)
	assert.Equal(t, models.SectionReview, review.Section)
}

func TestActivityBoostCapsAtThirtyWeeklyMessages(t *testing.T) {
	s := newTestScorer()

	at30, ok := s.Score(testMsg(0), testState(models.PhaseActive, 30), "alice", now)
	require.True(t, ok)
	at90, ok := s.Score(testMsg(0), testState(models.PhaseActive, 90), "alice", now)
	require.True(t, ok)

	assert.InDelta(t, 1.5, at30.Score, 1e-9)
	assert.Equal(t, at30.Score, at90.Score)
}

func TestUrgencyOverridesSectionNotScore(t *testing.T) {
	s := newTestScorer()

	// A blocker against a review state keeps the review multiplier but
	// still routes to urgent.
	m := testMsg(0, blockerOpt())
	scored, ok := s.Score(m, testState(models.PhaseReview, 0), "alice", now)
	require.True(t, ok)
	assert.Equal(t, models.SectionUrgent, scored.Section)
	assert.InDelta(t, 0.5, scored.Score, 1e-9) // recency 1.0 × review 0.5
}

func TestScoreIsDeterministic(t *testing.T) {
	s := newTestScorer()
	m := testMsg(3*time.Hour, func(mm *models.Message) { mm.IsUrgent = true })
	st := testState(models.PhaseActive, 5)

	first, ok := s.Score(m, st, "alice", now)
	require.True(t, ok)
	second, ok := s.Score(m, st, "alice", now)
	require.True(t, ok)
	assert.Equal(t, first.Score, second.Score)
}

func blockerOpt() func(*models.Message) {
	return func(m *models.Message) { m.IsBlocker = true }
}
