// Package models defines the core data types shared across the digest
// pipeline: messages, per-user project phase states, scored messages and
// the assembled digest.
package models

import (
	"fmt"
	"time"
)

// Phase describes a user's current relationship to a project.
type Phase string

const (
	PhaseActive  Phase = "active"
	PhaseReview  Phase = "review"
	PhaseDone    Phase = "done"
	PhaseBlocked Phase = "blocked"
)

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseActive, PhaseReview, PhaseDone, PhaseBlocked:
		return true
	}
	return false
}

// StateKey identifies a PhaseState by (user, project).
type StateKey struct {
	UserID    string
	ProjectID string
}

// PhaseState tracks one user's involvement in one project.
// Owned by the phase state machine; read-only for the scorer.
type PhaseState struct {
	UserID           string
	ProjectID        string
	Phase            Phase
	LastContributed  time.Time
	MessagesPastWeek int
	// IsOverride freezes automatic transitions and anomaly reactivation
	// until the override is cleared.
	IsOverride bool
}

// Key returns the (user, project) identity of the state.
func (s *PhaseState) Key() StateKey {
	return StateKey{UserID: s.UserID, ProjectID: s.ProjectID}
}

// Message is a normalized team chat message as produced by ingestion.
// Immutable once ingested.
type Message struct {
	ID        string
	ProjectID string // empty until resolved by the extractor
	Channel   string // empty for DMs
	ThreadID  string
	Sender    string
	Text      string
	Timestamp time.Time
	Mentions  []string
	IsDM      bool
	IsUrgent  bool
	IsBlocker bool
	// IsReplyToUser marks a reply in a thread the digest user previously
	// posted in. Set per evaluating user during the run.
	IsReplyToUser bool
}

// MentionsUser reports whether userID appears in the mention list.
func (m *Message) MentionsUser(userID string) bool {
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// Validate rejects messages missing required fields. Malformed messages
// are dropped individually; the run continues.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message missing id")
	}
	if m.Sender == "" {
		return fmt.Errorf("message %s missing sender", m.ID)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("message %s missing timestamp", m.ID)
	}
	return nil
}

// Section is the digest bucket a scored message lands in.
type Section string

const (
	SectionUrgent Section = "urgent"
	SectionActive Section = "active"
	SectionReview Section = "review"
)

// ScoredMessage is the scorer's per-run output for one message.
// Ephemeral; never persisted.
type ScoredMessage struct {
	Message        *Message
	Score          float64
	Section        Section
	PhaseAtScoring Phase
}

// DigestItem is one entry in the digest output.
type DigestItem struct {
	MessageID      string    `json:"message_id"`
	ProjectID      string    `json:"project_id"`
	Summary        string    `json:"summary"`
	RelevanceScore float64   `json:"relevance_score"`
	Sender         string    `json:"sender"`
	Channel        string    `json:"channel,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	IsUrgent       bool      `json:"is_urgent"`
	IsBlocker      bool      `json:"is_blocker"`
}

// ProjectGroup bundles one project's messages within a digest section,
// with a single summary line for the group.
type ProjectGroup struct {
	ProjectID    string       `json:"project_id"`
	ProjectName  string       `json:"project_name"`
	Summary      string       `json:"summary"`
	Items        []DigestItem `json:"items"`
	MessageCount int          `json:"message_count"`
	// Relevance is the max member score, the group's aggregate rank.
	Relevance float64 `json:"relevance"`
}

// Digest is the final per-user output of one run.
type Digest struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Urgent      []ProjectGroup `json:"urgent"`
	Active      []ProjectGroup `json:"active"`
	Review      []ProjectGroup `json:"review"`
}

// ItemCount returns the total number of items across all sections.
func (d *Digest) ItemCount() int {
	n := 0
	for _, groups := range [][]ProjectGroup{d.Urgent, d.Active, d.Review} {
		for _, g := range groups {
			n += len(g.Items)
		}
	}
	return n
}

// Project defines a known project and the channels/keywords that map
// messages to it.
type Project struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Channels []string `yaml:"channels" json:"channels"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}
