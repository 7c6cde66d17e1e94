// Package extract resolves which project a message belongs to, using a
// registry of known projects loaded from YAML.
package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/RishbhaJain/daily-digest/internal/models"
)

// PersonalProjectID is the bucket for DMs that match no known project.
const PersonalProjectID = "personal"

var personalKeywords = []string{"promotion", "1:1", "career", "feedback", "review", "performance"}

// Extractor maps messages to project IDs by channel, then keywords, then
// DM handling. Unmatched channel messages stay unresolved.
type Extractor struct {
	projects []models.Project
	byID     map[string]models.Project
	logger   zerolog.Logger
}

// New creates an extractor over the given project registry.
func New(projects []models.Project, logger zerolog.Logger) *Extractor {
	byID := make(map[string]models.Project, len(projects)+1)
	for _, p := range projects {
		byID[p.ID] = p
	}
	byID[PersonalProjectID] = models.Project{
		ID:       PersonalProjectID,
		Name:     "Personal",
		Keywords: personalKeywords,
	}
	return &Extractor{
		projects: projects,
		byID:     byID,
		logger:   logger.With().Str("component", "extractor").Logger(),
	}
}

// LoadRegistry reads the project registry from a YAML file.
func LoadRegistry(path string) ([]models.Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project registry: %w", err)
	}

	var reg struct {
		Projects []models.Project `yaml:"projects"`
	}
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse project registry: %w", err)
	}

	for _, p := range reg.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("project registry entry missing id")
		}
	}
	return reg.Projects, nil
}

// Resolve returns the project ID for a message, or "" when nothing
// matches. Channel membership wins over keywords; DMs that match nothing
// fall into the personal bucket.
func (e *Extractor) Resolve(msg *models.Message) string {
	if msg.Channel != "" {
		for _, p := range e.projects {
			for _, ch := range p.Channels {
				if msg.Channel == ch {
					return p.ID
				}
			}
		}
	}

	text := strings.ToLower(msg.Text)
	for _, p := range e.projects {
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return p.ID
			}
		}
	}

	if msg.IsDM {
		return PersonalProjectID
	}
	return ""
}

// ResolveAll stamps ProjectID on each message in place and returns how
// many stayed unresolved.
func (e *Extractor) ResolveAll(msgs []*models.Message) int {
	unresolved := 0
	for _, m := range msgs {
		if m.ProjectID != "" {
			continue
		}
		m.ProjectID = e.Resolve(m)
		if m.ProjectID == "" {
			unresolved++
		}
	}
	if unresolved > 0 {
		e.logger.Debug().Int("unresolved", unresolved).Msg("messages without project")
	}
	return unresolved
}

// Project returns the registry entry for an ID.
func (e *Extractor) Project(id string) (models.Project, bool) {
	p, ok := e.byID[id]
	return p, ok
}

// Names returns the project-ID to display-name map for digest assembly.
func (e *Extractor) Names() map[string]string {
	names := make(map[string]string, len(e.byID))
	for id, p := range e.byID {
		names[id] = p.Name
	}
	return names
}
