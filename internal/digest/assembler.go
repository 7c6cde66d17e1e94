// Package digest turns the scored-and-sectioned message set into the final
// bounded, ordered digest. The assembler never mutates phase state.
package digest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RishbhaJain/daily-digest/internal/models"
	"github.com/RishbhaJain/daily-digest/internal/summarize"
)

// Config holds assembly tunables.
type Config struct {
	// MaxItems is the soft global cap on digest items. Urgent items are
	// never dropped to satisfy it: the cap bounds non-urgent noise, not
	// safety-critical information.
	MaxItems int
	// SummaryMaxLen bounds single-message summary lines.
	SummaryMaxLen int
}

// DefaultConfig returns the production assembly settings.
func DefaultConfig() Config {
	return Config{MaxItems: 20, SummaryMaxLen: 150}
}

// Stats reports per-run assembly observations for metrics.
type Stats struct {
	SectionCounts       map[models.Section]int
	SummarizerFallbacks int
}

// Assembler builds digests from scored messages. The summarizer is only
// consulted for multi-message review groups; everything else is
// deterministic.
type Assembler struct {
	cfg        Config
	summarizer summarize.Summarizer
	logger     zerolog.Logger
}

// NewAssembler creates an assembler. summarizer may be nil, in which case
// review groups always use the deterministic fallback.
func NewAssembler(cfg Config, summarizer summarize.Summarizer, logger zerolog.Logger) *Assembler {
	return &Assembler{
		cfg:        cfg,
		summarizer: summarizer,
		logger:     logger.With().Str("component", "assembler").Logger(),
	}
}

// Assemble partitions, orders, caps and groups the scored messages into a
// digest for userID. projectNames maps project IDs to display names.
func (a *Assembler) Assemble(ctx context.Context, userID string, scored []*models.ScoredMessage, projectNames map[string]string, now time.Time) (*models.Digest, Stats) {
	sections := map[models.Section][]*models.ScoredMessage{}
	for _, sm := range scored {
		sections[sm.Section] = append(sections[sm.Section], sm)
	}
	for _, msgs := range sections {
		sortScored(msgs)
	}

	urgent := sections[models.SectionUrgent]
	active := sections[models.SectionActive]
	review := sections[models.SectionReview]

	// Urgent is taken in full even past the cap; active then review fill
	// whatever budget remains.
	budget := a.cfg.MaxItems - len(urgent)
	if budget < 0 {
		budget = 0
	}
	active = take(active, budget)
	budget -= len(active)
	review = take(review, budget)

	stats := Stats{SectionCounts: map[models.Section]int{
		models.SectionUrgent: len(urgent),
		models.SectionActive: len(active),
		models.SectionReview: len(review),
	}}

	d := &models.Digest{
		ID:          uuid.New().String(),
		UserID:      userID,
		GeneratedAt: now,
		Urgent:      a.groupSection(ctx, urgent, projectNames, models.SectionUrgent, &stats),
		Active:      a.groupSection(ctx, active, projectNames, models.SectionActive, &stats),
		Review:      a.groupSection(ctx, review, projectNames, models.SectionReview, &stats),
	}

	a.logger.Info().
		Str("user", userID).
		Int("urgent", len(urgent)).
		Int("active", len(active)).
		Int("review", len(review)).
		Int("summary_fallbacks", stats.SummarizerFallbacks).
		Msg("digest assembled")

	return d, stats
}

// sortScored orders by score descending; ties break to the more recent
// timestamp, then message ID for full determinism.
func sortScored(msgs []*models.ScoredMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Score != msgs[j].Score {
			return msgs[i].Score > msgs[j].Score
		}
		ti, tj := msgs[i].Message.Timestamp, msgs[j].Message.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return msgs[i].Message.ID < msgs[j].Message.ID
	})
}

func take(msgs []*models.ScoredMessage, n int) []*models.ScoredMessage {
	if len(msgs) > n {
		return msgs[:n]
	}
	return msgs
}

// groupSection emits one ProjectGroup per project. Groups are ordered by
// message count descending, then aggregate relevance. Only multi-message
// review groups consult the summarizer; its failure falls back to the
// deterministic text and never fails the digest.
func (a *Assembler) groupSection(ctx context.Context, msgs []*models.ScoredMessage, projectNames map[string]string, section models.Section, stats *Stats) []models.ProjectGroup {
	byProject := map[string][]*models.ScoredMessage{}
	var order []string
	for _, sm := range msgs {
		pid := sm.Message.ProjectID
		if pid == "" {
			pid = "unknown"
		}
		if _, ok := byProject[pid]; !ok {
			order = append(order, pid)
		}
		byProject[pid] = append(byProject[pid], sm)
	}

	groups := make([]models.ProjectGroup, 0, len(byProject))
	for _, pid := range order {
		members := byProject[pid]
		group := models.ProjectGroup{
			ProjectID:    pid,
			ProjectName:  displayName(pid, projectNames),
			Items:        make([]models.DigestItem, 0, len(members)),
			MessageCount: len(members),
		}

		var raw []*models.Message
		for _, sm := range members {
			raw = append(raw, sm.Message)
			if sm.Score > group.Relevance {
				group.Relevance = sm.Score
			}
			group.Items = append(group.Items, a.item(sm))
		}

		group.Summary = a.summarizeGroup(ctx, group.ProjectName, section, raw, stats)
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].MessageCount != groups[j].MessageCount {
			return groups[i].MessageCount > groups[j].MessageCount
		}
		return groups[i].Relevance > groups[j].Relevance
	})
	return groups
}

func (a *Assembler) summarizeGroup(ctx context.Context, projectName string, section models.Section, msgs []*models.Message, stats *Stats) string {
	if len(msgs) == 1 {
		return summarize.OneLine(msgs[0].Text, a.cfg.SummaryMaxLen)
	}
	if section != models.SectionReview || a.summarizer == nil {
		return summarize.FallbackText(msgs)
	}

	summary, err := a.summarizer.Summarize(ctx, summarize.Request{
		ProjectName: projectName,
		Section:     string(section),
		Messages:    msgs,
	})
	if err != nil {
		stats.SummarizerFallbacks++
		a.logger.Warn().Err(err).Str("project", projectName).Msg("summarizer failed, using fallback")
		return summarize.FallbackText(msgs)
	}
	return summary
}

func (a *Assembler) item(sm *models.ScoredMessage) models.DigestItem {
	m := sm.Message
	return models.DigestItem{
		MessageID:      m.ID,
		ProjectID:      m.ProjectID,
		Summary:        summarize.OneLine(m.Text, a.cfg.SummaryMaxLen),
		RelevanceScore: sm.Score,
		Sender:         m.Sender,
		Channel:        m.Channel,
		Timestamp:      m.Timestamp,
		IsUrgent:       m.IsUrgent,
		IsBlocker:      m.IsBlocker,
	}
}

func displayName(projectID string, names map[string]string) string {
	if name, ok := names[projectID]; ok {
		return name
	}
	return projectID
}
