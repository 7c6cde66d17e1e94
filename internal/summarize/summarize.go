// Package summarize defines the summarizer capability used by the digest
// assembler, with an Anthropic-backed implementation and a deterministic
// fallback. The assembler only ever sees the interface; summarizer outages
// degrade to the fallback and never fail a run.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// Request is one project group to condense into a 1-2 sentence summary.
type Request struct {
	ProjectName string
	Section     string
	Messages    []*models.Message
}

// Summarizer condenses a group of messages into a short summary line.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Fallback produces deterministic, non-LLM summaries: message count,
// sender list and urgency indicators. Always succeeds.
type Fallback struct{}

// NewFallback creates the deterministic summarizer.
func NewFallback() *Fallback { return &Fallback{} }

// Summarize implements Summarizer without external calls.
func (f *Fallback) Summarize(_ context.Context, req Request) (string, error) {
	return FallbackText(req.Messages), nil
}

// FallbackText renders the deterministic group summary. Senders are listed
// in first-seen order, truncated to three.
func FallbackText(msgs []*models.Message) string {
	if len(msgs) == 0 {
		return "No messages"
	}

	seen := make(map[string]bool)
	var senders []string
	blockers, urgent := 0, 0
	for _, m := range msgs {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			senders = append(senders, m.Sender)
		}
		if m.IsBlocker {
			blockers++
		}
		if m.IsUrgent {
			urgent++
		}
	}

	senderList := strings.Join(senders[:min(3, len(senders))], ", ")
	if len(senders) > 3 {
		senderList += fmt.Sprintf(" and %d others", len(senders)-3)
	}

	parts := []string{fmt.Sprintf("%d messages from %s", len(msgs), senderList)}
	if blockers > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", blockers, plural("blocker", blockers)))
	}
	if urgent > 0 {
		parts = append(parts, fmt.Sprintf("%d urgent", urgent))
	}
	return strings.Join(parts, " - ")
}

// OneLine collapses a message's text to a single truncated summary line.
func OneLine(text string, maxLen int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if maxLen > 3 && len(collapsed) > maxLen {
		return collapsed[:maxLen-3] + "..."
	}
	return collapsed
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// promptContext renders the request's messages for the LLM prompt, oldest
// first, capped at ten messages of 200 characters each.
func promptContext(msgs []*models.Message) string {
	ordered := make([]*models.Message, len(msgs))
	copy(ordered, msgs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	if len(ordered) > 10 {
		ordered = ordered[:10]
	}

	var b strings.Builder
	for i, m := range ordered {
		text := m.Text
		if len(text) > 200 {
			text = text[:200]
		}
		fmt.Fprintf(&b, "%d. From %s: %s\n", i+1, m.Sender, text)
	}
	return b.String()
}
