package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// Notifier delivers finished digests to users as Slack DMs.
type Notifier struct {
	api    ClientAPI
	logger zerolog.Logger
}

// NewNotifier creates a digest notifier.
func NewNotifier(api ClientAPI, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:    api,
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

// Deliver opens a DM with the Slack user and posts the digest.
func (n *Notifier) Deliver(ctx context.Context, slackUserID string, digest *models.Digest) error {
	ch, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{slackUserID},
	})
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", slackUserID, err)
	}

	blocks := DigestBlocks(digest)
	_, _, err = n.api.PostMessageContext(ctx, ch.ID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fmt.Sprintf("Daily digest: %d items", digest.ItemCount()), false),
	)
	if err != nil {
		return fmt.Errorf("post digest to %s: %w", slackUserID, err)
	}

	n.logger.Info().Str("user", digest.UserID).Int("items", digest.ItemCount()).Msg("digest delivered")
	return nil
}

// DigestBlocks renders a digest as Block Kit blocks.
func DigestBlocks(d *models.Digest) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text",
			fmt.Sprintf("Daily Digest — %s", d.GeneratedAt.Format("Mon Jan 2")), false, false)),
	}
	blocks = appendSection(blocks, "🔴 Urgent", d.Urgent)
	blocks = appendSection(blocks, "🔵 Active", d.Active)
	blocks = appendSection(blocks, "⚪ Review", d.Review)

	if d.ItemCount() == 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "_Nothing relevant today._", false, false), nil, nil))
	}
	return blocks
}

func appendSection(blocks []slack.Block, title string, groups []models.ProjectGroup) []slack.Block {
	if len(groups) == 0 {
		return blocks
	}
	blocks = append(blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", "*"+title+"*", false, false), nil, nil))

	for _, g := range groups {
		var b strings.Builder
		fmt.Fprintf(&b, "*%s* (%d): %s", g.ProjectName, g.MessageCount, g.Summary)
		for _, item := range g.Items {
			fmt.Fprintf(&b, "\n• %s — %s", item.Sender, item.Summary)
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", b.String(), false, false), nil, nil))
	}
	return blocks
}
