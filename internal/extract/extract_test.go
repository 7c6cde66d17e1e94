package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

func testProjects() []models.Project {
	return []models.Project{
		{
			ID:       "pcb",
			Name:     "PCB Design",
			Channels: []string{"proj-pcb", "hw-reviews"},
			Keywords: []string{"layout", "gerber", "fab"},
		},
		{
			ID:       "motor",
			Name:     "Motor Control",
			Channels: []string{"proj-motor"},
			Keywords: []string{"pid tuning", "encoder"},
		},
	}
}

func newTestExtractor() *Extractor {
	return New(testProjects(), zerolog.New(os.Stderr))
}

func msg(channel, text string, dm bool) *models.Message {
	return &models.Message{
		ID:        "m1",
		Channel:   channel,
		Sender:    "alice",
		Text:      text,
		Timestamp: time.Now(),
		IsDM:      dm,
	}
}

func TestResolve_ChannelBeatsKeywords(t *testing.T) {
	e := newTestExtractor()

	// Channel membership wins even when the text mentions another project.
	got := e.Resolve(msg("proj-motor", "the gerber files look wrong", false))
	assert.Equal(t, "motor", got)
}

func TestResolve_KeywordMatch(t *testing.T) {
	e := newTestExtractor()

	assert.Equal(t, "pcb", e.Resolve(msg("random-channel", "new LAYOUT pushed", false)))
	assert.Equal(t, "motor", e.Resolve(msg("random-channel", "started pid tuning today", false)))
	assert.Equal(t, "", e.Resolve(msg("random-channel", "lunch anyone?", false)))
}

func TestResolve_DMFallsBackToPersonal(t *testing.T) {
	e := newTestExtractor()

	// DM with a project keyword still resolves to the project.
	assert.Equal(t, "pcb", e.Resolve(msg("", "can you check the fab order?", true)))

	// Unmatched DM lands in the personal bucket.
	assert.Equal(t, PersonalProjectID, e.Resolve(msg("", "got a minute to chat?", true)))

	// Unmatched channel message stays unresolved.
	assert.Equal(t, "", e.Resolve(msg("random-channel", "got a minute to chat?", false)))
}

func TestResolveAll_StampsInPlace(t *testing.T) {
	e := newTestExtractor()

	msgs := []*models.Message{
		msg("proj-pcb", "standup notes", false),
		msg("random-channel", "lunch anyone?", false),
		{ID: "pre", ProjectID: "motor", Sender: "bob", Text: "x", Timestamp: time.Now()},
	}
	unresolved := e.ResolveAll(msgs)

	assert.Equal(t, 1, unresolved)
	assert.Equal(t, "pcb", msgs[0].ProjectID)
	assert.Equal(t, "", msgs[1].ProjectID)
	assert.Equal(t, "motor", msgs[2].ProjectID) // pre-resolved untouched
}

func TestNamesAndLookup(t *testing.T) {
	e := newTestExtractor()

	names := e.Names()
	assert.Equal(t, "PCB Design", names["pcb"])
	assert.Equal(t, "Personal", names[PersonalProjectID])

	p, ok := e.Project("motor")
	require.True(t, ok)
	assert.Equal(t, "Motor Control", p.Name)

	_, ok = e.Project("nope")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projects:
  - id: pcb
    name: PCB Design
    channels: [proj-pcb]
    keywords: [layout, gerber]
  - id: motor
    name: Motor Control
    channels: [proj-motor]
    keywords: [encoder]
`), 0o644))

	projects, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "pcb", projects[0].ID)
	assert.Equal(t, []string{"proj-pcb"}, projects[0].Channels)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRegistry_RejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projects:
  - name: Unnamed
    channels: [x]
`), 0o644))

	_, err := LoadRegistry(path)
	assert.Error(t, err)
}
