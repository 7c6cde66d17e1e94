package mgmt

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/RishbhaJain/daily-digest/internal/health"
	"github.com/RishbhaJain/daily-digest/internal/models"
)

// StateStore is the slice of the store the API needs.
type StateStore interface {
	LoadPhaseStates(userID string) (map[string]*models.PhaseState, error)
	SetOverride(userID, projectID string, phase models.Phase) (*models.PhaseState, error)
	ClearOverride(userID, projectID string) (bool, error)
	LatestDigest(userID string) (*models.Digest, error)
}

// RunTrigger requests an out-of-schedule digest run.
type RunTrigger interface {
	Trigger()
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store     StateStore
	trigger   RunTrigger
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store StateStore, trigger RunTrigger, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:     store,
		trigger:   trigger,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz. Degraded dependencies stay ready; only a
// down dependency fails the probe.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not_ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	overall := "ok"
	checks := make(map[string]string, len(results))
	for name, s := range results {
		checks[name] = string(s)
		switch s {
		case health.StatusDown:
			overall = "down"
		case health.StatusDegraded:
			if overall == "ok" {
				overall = "degraded"
			}
		}
	}

	return c.JSON(HealthResponse{
		Status:        overall,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Checks:        checks,
	})
}

// TriggerRun handles POST /api/v1/runs.
func (h *Handlers) TriggerRun(c *fiber.Ctx) error {
	h.trigger.Trigger()
	h.logger.Info().Msg("digest run triggered via API")
	return c.Status(fiber.StatusAccepted).JSON(RunResponse{Status: "triggered"})
}

// LatestDigest handles GET /api/v1/users/:user/digest.
func (h *Handlers) LatestDigest(c *fiber.Ctx) error {
	userID := c.Params("user")
	d, err := h.store.LatestDigest(userID)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", err.Error())
	}
	if d == nil {
		return problemResponse(c, fiber.StatusNotFound,
			"digest_not_found", "Not Found",
			"No digest has been generated for this user yet")
	}
	return c.JSON(d)
}

// ListStates handles GET /api/v1/users/:user/states.
func (h *Handlers) ListStates(c *fiber.Ctx) error {
	userID := c.Params("user")
	states, err := h.store.LoadPhaseStates(userID)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", err.Error())
	}

	out := make([]PhaseStateResponse, 0, len(states))
	for _, st := range states {
		out = append(out, stateResponse(st))
	}
	return c.JSON(out)
}

// SetOverride handles PUT /api/v1/users/:user/projects/:project/override.
// Manual phase assignment always wins and freezes automatic transitions.
func (h *Handlers) SetOverride(c *fiber.Ctx) error {
	userID := c.Params("user")
	projectID := c.Params("project")

	var req OverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	phase := models.Phase(req.Phase)
	if !phase.Valid() {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_phase", "Bad Request",
			"Phase must be one of active, review, done, blocked")
	}

	st, err := h.store.SetOverride(userID, projectID, phase)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", err.Error())
	}

	h.logger.Info().
		Str("user", userID).
		Str("project", projectID).
		Str("phase", req.Phase).
		Msg("phase override set")
	return c.JSON(stateResponse(st))
}

// ClearOverride handles DELETE /api/v1/users/:user/projects/:project/override.
func (h *Handlers) ClearOverride(c *fiber.Ctx) error {
	userID := c.Params("user")
	projectID := c.Params("project")

	cleared, err := h.store.ClearOverride(userID, projectID)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", err.Error())
	}
	if !cleared {
		return problemResponse(c, fiber.StatusNotFound,
			"state_not_found", "Not Found",
			"No phase state exists for this user and project")
	}

	h.logger.Info().
		Str("user", userID).
		Str("project", projectID).
		Msg("phase override cleared")
	return c.SendStatus(fiber.StatusNoContent)
}

func stateResponse(st *models.PhaseState) PhaseStateResponse {
	return PhaseStateResponse{
		UserID:           st.UserID,
		ProjectID:        st.ProjectID,
		Phase:            string(st.Phase),
		LastContributed:  st.LastContributed.UTC().Format(time.RFC3339),
		MessagesPastWeek: st.MessagesPastWeek,
		IsOverride:       st.IsOverride,
	}
}
