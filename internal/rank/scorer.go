// Package rank computes per-message relevance scores against a user's
// phase state. Scoring is pure: identical inputs and evaluation time
// always produce the identical score, so runs are replayable.
package rank

import (
	"math"
	"time"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// Config holds the scoring constants. All values are injected so tests can
// vary thresholds without shared globals.
type Config struct {
	// HalfLife is the recency decay half-life. Default 8 hours.
	HalfLife time.Duration

	UrgencyBoost      float64 // multiplier when is_urgent
	MentionBoost      float64 // multiplier when the user is mentioned
	ActivityBoostStep float64 // per weekly message
	ActivityBoostCap  float64 // activity boost ceiling
	ReviewMultiplier  float64 // phase multiplier for review states

	// UnknownScore is the fixed low-confidence score for messages with no
	// phase state. BlockedFloor is the fixed score for non-blocker
	// messages in blocked projects.
	UnknownScore float64
	BlockedFloor float64
}

// DefaultConfig returns the production scoring constants.
func DefaultConfig() Config {
	return Config{
		HalfLife:          8 * time.Hour,
		UrgencyBoost:      1.5,
		MentionBoost:      1.8,
		ActivityBoostStep: 0.05,
		ActivityBoostCap:  1.5,
		ReviewMultiplier:  0.5,
		UnknownScore:      0.3,
		BlockedFloor:      0.1,
	}
}

// Scorer scores messages for one digest run. It never mutates phase state.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given constants.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score evaluates one message against its resolved phase state (nil when
// no association exists). Returns false when the message is gated out
// entirely: done projects never surface, regardless of urgency.
func (s *Scorer) Score(msg *models.Message, state *models.PhaseState, userID string, now time.Time) (*models.ScoredMessage, bool) {
	// Phase gating runs before any weighted scoring.
	if state == nil {
		return &models.ScoredMessage{
			Message: msg,
			Score:   s.cfg.UnknownScore,
			Section: s.section(msg, nil),
		}, true
	}

	switch state.Phase {
	case models.PhaseDone:
		return nil, false
	case models.PhaseBlocked:
		if !msg.IsBlocker {
			return &models.ScoredMessage{
				Message:        msg,
				Score:          s.cfg.BlockedFloor,
				Section:        s.section(msg, state),
				PhaseAtScoring: state.Phase,
			}, true
		}
	}

	score := s.Recency(msg.Timestamp, now) *
		s.urgencyBoost(msg) *
		s.mentionBoost(msg, userID) *
		s.activityBoost(state) *
		s.phaseMultiplier(msg, state)

	return &models.ScoredMessage{
		Message:        msg,
		Score:          score,
		Section:        s.section(msg, state),
		PhaseAtScoring: state.Phase,
	}, true
}

// Recency is the exponential decay factor: 1.0 at the evaluation instant,
// 0.5 one half-life later. Clamped to [0, 1] so malformed future
// timestamps cannot inflate scores.
func (s *Scorer) Recency(ts, now time.Time) float64 {
	elapsed := now.Sub(ts)
	if elapsed <= 0 {
		return 1.0
	}
	return math.Pow(0.5, elapsed.Hours()/s.cfg.HalfLife.Hours())
}

func (s *Scorer) urgencyBoost(msg *models.Message) float64 {
	if msg.IsUrgent {
		return s.cfg.UrgencyBoost
	}
	return 1.0
}

func (s *Scorer) mentionBoost(msg *models.Message, userID string) float64 {
	if msg.MentionsUser(userID) {
		return s.cfg.MentionBoost
	}
	return 1.0
}

func (s *Scorer) activityBoost(state *models.PhaseState) float64 {
	boost := 1.0 + float64(state.MessagesPastWeek)*s.cfg.ActivityBoostStep
	return math.Min(boost, s.cfg.ActivityBoostCap)
}

// phaseMultiplier is 1.0 for active, reduced for review. A blocker in a
// blocked project bypasses the floor and scores at full weight.
func (s *Scorer) phaseMultiplier(msg *models.Message, state *models.PhaseState) float64 {
	switch state.Phase {
	case models.PhaseReview:
		return s.cfg.ReviewMultiplier
	case models.PhaseBlocked:
		return 1.0
	default:
		return 1.0
	}
}

// section assigns the digest bucket. Urgency and blocker status override
// the phase-derived default: even a low-multiplier blocker routes to
// urgent.
func (s *Scorer) section(msg *models.Message, state *models.PhaseState) models.Section {
	if msg.IsBlocker || msg.IsUrgent {
		return models.SectionUrgent
	}
	if state != nil && state.Phase == models.PhaseReview {
		return models.SectionReview
	}
	return models.SectionActive
}
