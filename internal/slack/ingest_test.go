package slack

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

type fakeAPI struct {
	history      map[string][]slack.Message
	replies      map[string][]slack.Message
	users        map[string]string
	userLookups  int
	posted       []postedMessage
	historyError error
}

type postedMessage struct {
	channel string
	options int
}

func (f *fakeAPI) GetConversationHistoryContext(_ context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	if f.historyError != nil {
		return nil, f.historyError
	}
	return &slack.GetConversationHistoryResponse{
		Messages: f.history[params.ChannelID],
	}, nil
}

func (f *fakeAPI) GetConversationRepliesContext(_ context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	return f.replies[params.Timestamp], false, "", nil
}

func (f *fakeAPI) GetConversationInfoContext(_ context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	ch := &slack.Channel{}
	ch.ID = input.ChannelID
	ch.Name = "name-" + input.ChannelID
	return ch, nil
}

func (f *fakeAPI) GetUserInfoContext(_ context.Context, user string) (*slack.User, error) {
	f.userLookups++
	name, ok := f.users[user]
	if !ok {
		return nil, fmt.Errorf("user_not_found")
	}
	return &slack.User{ID: user, Name: name}, nil
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.posted = append(f.posted, postedMessage{channel: channelID, options: len(options)})
	return channelID, "1.0", nil
}

func (f *fakeAPI) OpenConversationContext(_ context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	ch := &slack.Channel{}
	ch.ID = "D-" + params.Users[0]
	return ch, false, false, nil
}

func slackMsg(user, text, ts string) slack.Message {
	m := slack.Message{}
	m.User = user
	m.Text = text
	m.Timestamp = ts
	return m
}

func TestFetchSince_NormalizesMessages(t *testing.T) {
	api := &fakeAPI{
		history: map[string][]slack.Message{
			"C1": {
				slackMsg("U1", "PCB layout is done, <@U2> please review ASAP", "1717999200.000100"),
				slackMsg("", "channel_join noise", "1717999300.000100"),
			},
		},
		users: map[string]string{"U1": "alice", "U2": "bob"},
	}
	ing := NewIngester(api, []string{"C1"}, zerolog.New(os.Stderr))

	msgs, err := ing.FetchSince(context.Background(), time.Unix(1717990000, 0))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "C1:1717999200.000100", m.ID)
	assert.Equal(t, "name-C1", m.Channel)
	assert.Equal(t, "alice", m.Sender)
	assert.Equal(t, []string{"bob"}, m.Mentions)
	assert.True(t, m.IsUrgent) // "ASAP"
	assert.False(t, m.IsBlocker)
	assert.Equal(t, time.UnixMicro(1717999200000100).UTC(), m.Timestamp)
}

func TestFetchSince_ThreadReplies(t *testing.T) {
	parent := slackMsg("U1", "tuning thread", "100.000000")
	parent.ReplyCount = 1
	reply := slackMsg("U2", "still blocked on the encoder", "101.000000")
	reply.ThreadTimestamp = "100.000000"

	api := &fakeAPI{
		history: map[string][]slack.Message{"C1": {parent}},
		replies: map[string][]slack.Message{"100.000000": {parent, reply}},
		users:   map[string]string{"U1": "alice", "U2": "bob"},
	}
	ing := NewIngester(api, []string{"C1"}, zerolog.New(os.Stderr))

	msgs, err := ing.FetchSince(context.Background(), time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "", msgs[0].ThreadID)
	assert.Equal(t, "C1:100.000000", msgs[1].ThreadID)
	assert.True(t, msgs[1].IsBlocker)
}

func TestFetchSince_AllChannelsFailing(t *testing.T) {
	api := &fakeAPI{historyError: fmt.Errorf("rate limited")}
	ing := NewIngester(api, []string{"C1", "C2"}, zerolog.New(os.Stderr))

	_, err := ing.FetchSince(context.Background(), time.Unix(0, 0))
	assert.Error(t, err)
}

func TestUserName_CachedAndFallsBack(t *testing.T) {
	api := &fakeAPI{users: map[string]string{"U1": "alice"}}
	ing := NewIngester(api, nil, zerolog.New(os.Stderr))

	assert.Equal(t, "alice", ing.userName(context.Background(), "U1"))
	assert.Equal(t, "alice", ing.userName(context.Background(), "U1"))
	assert.Equal(t, 1, api.userLookups, "second lookup should hit the cache")

	// Unknown user falls back to the raw ID.
	assert.Equal(t, "U404", ing.userName(context.Background(), "U404"))
}

func TestParseMentions(t *testing.T) {
	got := parseMentions("hey <@U1> and <@U2|bob>, <@U1> again")
	assert.Equal(t, []string{"U1", "U2"}, got)
	assert.Nil(t, parseMentions("no mentions here"))
}

func TestKeywordFlags(t *testing.T) {
	assert.True(t, containsAny("this is URGENT", urgentKeywords))
	assert.True(t, containsAny("we are blocked on fab", blockerKeywords))
	assert.False(t, containsAny("all good", urgentKeywords))
}

func TestNotifier_Deliver(t *testing.T) {
	api := &fakeAPI{}
	n := NewNotifier(api, zerolog.New(os.Stderr))

	digest := &models.Digest{
		ID:          "d1",
		UserID:      "alice",
		GeneratedAt: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		Urgent: []models.ProjectGroup{{
			ProjectID: "pcb", ProjectName: "PCB", Summary: "fab blocked",
			MessageCount: 1,
			Items:        []models.DigestItem{{MessageID: "m1", Sender: "bob", Summary: "fab blocked"}},
		}},
	}

	err := n.Deliver(context.Background(), "U1", digest)
	require.NoError(t, err)
	require.Len(t, api.posted, 1)
	assert.Equal(t, "D-U1", api.posted[0].channel)
}

func TestDigestBlocks_EmptyDigest(t *testing.T) {
	d := &models.Digest{ID: "d1", UserID: "alice", GeneratedAt: time.Now()}
	blocks := DigestBlocks(d)
	require.Len(t, blocks, 2) // header + empty notice
}
