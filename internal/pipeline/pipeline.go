// Package pipeline orchestrates one digest run: ingest, project
// resolution, phase updates, scoring, assembly and the atomic commit.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RishbhaJain/daily-digest/internal/digest"
	"github.com/RishbhaJain/daily-digest/internal/extract"
	"github.com/RishbhaJain/daily-digest/internal/metrics"
	"github.com/RishbhaJain/daily-digest/internal/models"
	"github.com/RishbhaJain/daily-digest/internal/phase"
	"github.com/RishbhaJain/daily-digest/internal/rank"
	"github.com/RishbhaJain/daily-digest/internal/store"
)

// Ingester pulls fresh messages from the chat platform.
type Ingester interface {
	FetchSince(ctx context.Context, since time.Time) ([]*models.Message, error)
}

// Deliverer pushes a finished digest to the user.
type Deliverer interface {
	Deliver(ctx context.Context, userID string, d *models.Digest) error
}

// Config holds the pipeline windows.
type Config struct {
	// MessageWindow is the batch window: how far back a run's "new"
	// messages reach. Default 24h.
	MessageWindow time.Duration
	// ActivityWindow is the trailing window used to recompute weekly
	// activity counts. Default 7 days.
	ActivityWindow time.Duration
}

// DefaultConfig returns the production windows.
func DefaultConfig() Config {
	return Config{
		MessageWindow:  24 * time.Hour,
		ActivityWindow: 7 * 24 * time.Hour,
	}
}

// Pipeline generates digests. One run per user is independent: a failing
// user does not abort the others.
type Pipeline struct {
	cfg       Config
	store     *store.Store
	ingester  Ingester // nil disables ingestion; runs read the store only
	deliverer Deliverer
	extractor *extract.Extractor
	machine   *phase.Machine
	scorer    *rank.Scorer
	assembler *digest.Assembler
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New wires the pipeline. ingester and deliverer may be nil.
func New(cfg Config, st *store.Store, ing Ingester, del Deliverer, ex *extract.Extractor,
	machine *phase.Machine, scorer *rank.Scorer, asm *digest.Assembler,
	m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		ingester:  ing,
		deliverer: del,
		extractor: ex,
		machine:   machine,
		scorer:    scorer,
		assembler: asm,
		metrics:   m,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run ingests fresh messages once, then generates a digest per user.
// Returns the digests that succeeded; the error is non-nil only when the
// run could not proceed at all.
func (p *Pipeline) Run(ctx context.Context, userIDs []string, now time.Time) ([]*models.Digest, error) {
	start := time.Now()

	if err := p.ingest(ctx, now); err != nil {
		p.metrics.RecordRun("failed")
		p.metrics.RecordError("pipeline", "ingest")
		return nil, err
	}

	window, err := p.store.LoadMessagesSince(now.Add(-p.cfg.ActivityWindow))
	if err != nil {
		p.metrics.RecordRun("failed")
		p.metrics.RecordError("pipeline", "load")
		return nil, fmt.Errorf("load window: %w", err)
	}
	p.extractor.ResolveAll(window)

	batchCutoff := now.Add(-p.cfg.MessageWindow)
	var batch []*models.Message
	for _, m := range window {
		if !m.Timestamp.Before(batchCutoff) {
			batch = append(batch, m)
		}
	}

	var digests []*models.Digest
	failed := 0
	for _, userID := range userIDs {
		d, err := p.runUser(ctx, userID, batch, window, now)
		if err != nil {
			failed++
			p.metrics.RecordRun("failed")
			p.metrics.RecordError("pipeline", "user_run")
			p.logger.Error().Err(err).Str("user", userID).Msg("digest run failed")
			continue
		}
		p.metrics.RecordRun("success")
		digests = append(digests, d)
	}

	p.metrics.ObserveRunDuration(time.Since(start).Seconds())
	p.logger.Info().
		Int("users", len(userIDs)).
		Int("failed", failed).
		Int("messages", len(batch)).
		Dur("elapsed", time.Since(start)).
		Msg("run complete")

	if failed == len(userIDs) && len(userIDs) > 0 {
		return digests, fmt.Errorf("all %d user runs failed", failed)
	}
	return digests, nil
}

// RunUser generates a digest for a single user against the current store
// contents, without re-ingesting.
func (p *Pipeline) RunUser(ctx context.Context, userID string, now time.Time) (*models.Digest, error) {
	window, err := p.store.LoadMessagesSince(now.Add(-p.cfg.ActivityWindow))
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	p.extractor.ResolveAll(window)

	batchCutoff := now.Add(-p.cfg.MessageWindow)
	var batch []*models.Message
	for _, m := range window {
		if !m.Timestamp.Before(batchCutoff) {
			batch = append(batch, m)
		}
	}
	return p.runUser(ctx, userID, batch, window, now)
}

func (p *Pipeline) ingest(ctx context.Context, now time.Time) error {
	if p.ingester == nil {
		return nil
	}
	fetched, err := p.ingester.FetchSince(ctx, now.Add(-p.cfg.MessageWindow))
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	valid := fetched[:0]
	for _, m := range fetched {
		if err := m.Validate(); err != nil {
			p.metrics.MessagesRejected.Inc()
			p.logger.Warn().Err(err).Msg("dropping malformed message")
			continue
		}
		valid = append(valid, m)
	}
	p.extractor.ResolveAll(valid)

	if err := p.store.SaveMessages(valid); err != nil {
		return fmt.Errorf("persist messages: %w", err)
	}
	return nil
}

func (p *Pipeline) runUser(ctx context.Context, userID string, batch, window []*models.Message, now time.Time) (*models.Digest, error) {
	started := time.Now()

	stateMap, err := p.store.LoadPhaseStates(userID)
	if err != nil {
		return nil, fmt.Errorf("load states for %s: %w", userID, err)
	}
	states := make([]*models.PhaseState, 0, len(stateMap))
	for _, st := range stateMap {
		states = append(states, st)
	}

	// Thread-reply detection is per user, so each run works on its own
	// copies of the batch messages.
	userBatch := markRepliesToUser(userID, batch, window)

	updated, transitions := p.machine.UpdateStates(userID, states, userBatch, window, now)
	for _, tr := range transitions {
		p.metrics.RecordTransition(string(tr.From), string(tr.To))
	}

	statesByProject := make(map[string]*models.PhaseState, len(updated))
	for _, st := range updated {
		statesByProject[st.ProjectID] = st
	}

	var scoredMsgs []*models.ScoredMessage
	for _, m := range userBatch {
		sm, ok := p.scorer.Score(m, statesByProject[m.ProjectID], userID, now)
		if !ok {
			continue
		}
		p.metrics.MessagesScored.Inc()
		scoredMsgs = append(scoredMsgs, sm)
	}

	d, stats := p.assembler.Assemble(ctx, userID, scoredMsgs, p.extractor.Names(), now)
	for section, count := range stats.SectionCounts {
		p.metrics.ObserveSectionItems(string(section), count)
	}
	for i := 0; i < stats.SummarizerFallbacks; i++ {
		p.metrics.SummarizerFallbacks.Inc()
	}

	if err := p.store.CommitRun(updated, d); err != nil {
		return nil, fmt.Errorf("commit run for %s: %w", userID, err)
	}
	if err := p.store.LogRun(userID, d.ID, "success", "", started, time.Now()); err != nil {
		p.logger.Warn().Err(err).Msg("run log write failed")
	}

	if p.deliverer != nil {
		if err := p.deliverer.Deliver(ctx, userID, d); err != nil {
			p.metrics.RecordError("pipeline", "deliver")
			p.logger.Warn().Err(err).Str("user", userID).Msg("digest delivery failed")
		}
	}
	return d, nil
}

// markRepliesToUser copies the batch and flags messages that reply to a
// thread the user posted in anywhere inside the activity window.
func markRepliesToUser(userID string, batch, window []*models.Message) []*models.Message {
	userThreads := map[string]bool{}
	for _, m := range window {
		if m.Sender != userID {
			continue
		}
		if m.ThreadID != "" {
			userThreads[m.ThreadID] = true
		}
		// A root message makes its own ID the thread key for replies.
		userThreads[m.ID] = true
	}

	out := make([]*models.Message, 0, len(batch))
	for _, m := range batch {
		cp := *m
		cp.IsReplyToUser = m.ThreadID != "" && m.Sender != userID && userThreads[m.ThreadID]
		out = append(out, &cp)
	}
	return out
}
