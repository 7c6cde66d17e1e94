package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	derrors "github.com/RishbhaJain/daily-digest/internal/errors"
	"github.com/RishbhaJain/daily-digest/internal/retry"
)

const (
	anthropicAPIBase    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultModel        = "claude-sonnet-4-5"
	defaultMaxTokens    = 150
)

// Anthropic implements Summarizer using the Anthropic Messages API.
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
	retryCfg  retry.Config
	logger    zerolog.Logger
}

// AnthropicOption configures the provider.
type AnthropicOption func(*Anthropic)

func WithModel(model string) AnthropicOption {
	return func(a *Anthropic) { a.model = model }
}

func WithHTTPClient(c *http.Client) AnthropicOption {
	return func(a *Anthropic) { a.client = c }
}

func WithRetry(cfg retry.Config) AnthropicOption {
	return func(a *Anthropic) { a.retryCfg = cfg }
}

// NewAnthropic constructs an Anthropic-backed summarizer.
func NewAnthropic(apiKey string, logger zerolog.Logger, opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		apiKey:    apiKey,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 20 * time.Second},
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.With().Str("component", "summarizer").Logger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ---- Anthropic wire types ----

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Summarize condenses a project group into 1-2 sentences. Transient API
// failures are retried; the caller falls back on error.
func (a *Anthropic) Summarize(ctx context.Context, req Request) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize these %d chat messages from the %q project in 1-2 sentences. "+
			"Focus on the key updates, decisions, or blockers.\n\nMessages:\n%s\nSummary:",
		len(req.Messages), req.ProjectName, promptContext(req.Messages))

	var summary string
	err := retry.Do(ctx, a.retryCfg, func(ctx context.Context) error {
		var callErr error
		summary, callErr = a.complete(ctx, prompt)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func (a *Anthropic) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		anthropicAPIBase+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", derrors.NewAPIError("anthropic", resp.StatusCode, string(raw))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic api error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic returned empty summary")
	}

	a.logger.Debug().
		Str("model", a.model).
		Int("in_tokens", parsed.Usage.InputTokens).
		Int("out_tokens", parsed.Usage.OutputTokens).
		Msg("summary generated")
	return text, nil
}
