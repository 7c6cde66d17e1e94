package mgmt

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// OverrideRequest pins a user's phase for a project.
type OverrideRequest struct {
	Phase string `json:"phase"`
}

// PhaseStateResponse is the API view of one phase state.
type PhaseStateResponse struct {
	UserID           string `json:"user_id"`
	ProjectID        string `json:"project_id"`
	Phase            string `json:"phase"`
	LastContributed  string `json:"last_contributed"`
	MessagesPastWeek int    `json:"messages_past_week"`
	IsOverride       bool   `json:"is_override"`
}

// RunResponse acknowledges a triggered run.
type RunResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the detailed health report.
type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}
