// Package slack ingests channel history into normalized messages and
// posts finished digests back as DMs.
package slack

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/RishbhaJain/daily-digest/internal/models"
	"github.com/RishbhaJain/daily-digest/lru"
)

// ClientAPI abstracts the Slack API client for testing.
type ClientAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

var urgentKeywords = []string{"urgent", "asap", "critical", "emergency", "immediately"}
var blockerKeywords = []string{"blocked", "blocker", "blocking", "can't proceed", "stuck on"}

// Ingester pulls conversation history and normalizes it. Channel and user
// display names are cached to keep API calls bounded.
type Ingester struct {
	api          ClientAPI
	channels     []string
	channelNames *lru.Cache[string, string]
	userNames    *lru.Cache[string, string]
	logger       zerolog.Logger
}

// NewIngester creates an ingester over the given channel IDs.
func NewIngester(api ClientAPI, channels []string, logger zerolog.Logger) *Ingester {
	return &Ingester{
		api:          api,
		channels:     channels,
		channelNames: lru.New[string, string](256),
		userNames:    lru.New[string, string](1024),
		logger:       logger.With().Str("component", "ingester").Logger(),
	}
}

// FetchSince pulls messages newer than the cutoff from every configured
// channel, thread replies included. A failing channel is logged and
// skipped; the rest of the fetch continues.
func (i *Ingester) FetchSince(ctx context.Context, since time.Time) ([]*models.Message, error) {
	var all []*models.Message
	var failed int
	for _, channelID := range i.channels {
		msgs, err := i.fetchChannel(ctx, channelID, since)
		if err != nil {
			failed++
			i.logger.Warn().Err(err).Str("channel", channelID).Msg("channel fetch failed")
			continue
		}
		all = append(all, msgs...)
	}
	if failed == len(i.channels) && len(i.channels) > 0 {
		return nil, fmt.Errorf("all %d channels failed to fetch", failed)
	}
	i.logger.Info().Int("messages", len(all)).Int("channels_failed", failed).Msg("ingest complete")
	return all, nil
}

func (i *Ingester) fetchChannel(ctx context.Context, channelID string, since time.Time) ([]*models.Message, error) {
	channelName, err := i.channelName(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var out []*models.Message
	cursor := ""
	for {
		resp, err := i.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Oldest:    slackTS(since),
			Cursor:    cursor,
			Limit:     200,
		})
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", channelID, err)
		}

		for _, sm := range resp.Messages {
			m, ok := i.normalize(ctx, sm, channelID, channelName)
			if !ok {
				continue
			}
			out = append(out, m)

			if sm.ReplyCount > 0 {
				replies, err := i.fetchReplies(ctx, channelID, channelName, sm.Timestamp, since)
				if err != nil {
					i.logger.Warn().Err(err).Str("thread", sm.Timestamp).Msg("thread fetch failed")
					continue
				}
				out = append(out, replies...)
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.ResponseMetaData.NextCursor
	}
	return out, nil
}

func (i *Ingester) fetchReplies(ctx context.Context, channelID, channelName, threadTS string, since time.Time) ([]*models.Message, error) {
	var out []*models.Message
	cursor := ""
	for {
		msgs, hasMore, next, err := i.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Oldest:    slackTS(since),
			Cursor:    cursor,
			Limit:     200,
		})
		if err != nil {
			return nil, err
		}
		for _, sm := range msgs {
			if sm.Timestamp == threadTS {
				continue // parent already ingested
			}
			m, ok := i.normalize(ctx, sm, channelID, channelName)
			if !ok {
				continue
			}
			out = append(out, m)
		}
		if !hasMore {
			break
		}
		cursor = next
	}
	return out, nil
}

// normalize converts a Slack message to the internal model. Bot messages,
// channel-join noise and empty texts are dropped.
func (i *Ingester) normalize(ctx context.Context, sm slack.Message, channelID, channelName string) (*models.Message, bool) {
	if sm.SubType != "" || sm.User == "" || strings.TrimSpace(sm.Text) == "" {
		return nil, false
	}

	ts, err := parseSlackTS(sm.Timestamp)
	if err != nil {
		i.logger.Warn().Str("ts", sm.Timestamp).Msg("unparseable message timestamp, dropping")
		return nil, false
	}

	m := &models.Message{
		ID:        channelID + ":" + sm.Timestamp,
		Channel:   channelName,
		Sender:    i.userName(ctx, sm.User),
		Text:      sm.Text,
		Timestamp: ts,
		Mentions:  i.resolveMentions(ctx, sm.Text),
		IsUrgent:  containsAny(sm.Text, urgentKeywords),
		IsBlocker: containsAny(sm.Text, blockerKeywords),
	}
	if sm.ThreadTimestamp != "" && sm.ThreadTimestamp != sm.Timestamp {
		m.ThreadID = channelID + ":" + sm.ThreadTimestamp
	}
	if err := m.Validate(); err != nil {
		return nil, false
	}
	return m, true
}

func (i *Ingester) channelName(ctx context.Context, channelID string) (string, error) {
	if name, ok := i.channelNames.Get(channelID); ok {
		return name, nil
	}
	ch, err := i.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return "", fmt.Errorf("channel info for %s: %w", channelID, err)
	}
	i.channelNames.Put(channelID, ch.Name)
	return ch.Name, nil
}

// userName resolves a Slack user ID to a display name, falling back to
// the raw ID when lookup fails.
func (i *Ingester) userName(ctx context.Context, userID string) string {
	if name, ok := i.userNames.Get(userID); ok {
		return name
	}
	u, err := i.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		i.logger.Debug().Err(err).Str("user", userID).Msg("user lookup failed")
		return userID
	}
	name := u.Profile.DisplayName
	if name == "" {
		name = u.Name
	}
	i.userNames.Put(userID, name)
	return name
}

// resolveMentions maps <@U123> markup to display names so mentions line
// up with message senders.
func (i *Ingester) resolveMentions(ctx context.Context, text string) []string {
	ids := parseMentions(text)
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, i.userName(ctx, id))
	}
	return out
}

// parseMentions extracts user IDs from <@U123> markup.
func parseMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// slackTS formats a time as a Slack API timestamp string.
func slackTS(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

// parseSlackTS parses "1717999200.000100" style timestamps.
func parseSlackTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(int64(f * 1e6)).UTC(), nil
}
