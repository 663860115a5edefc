package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/qxlabai/datapipe/pkg/chat"
)

// Config configures [NewClient].
type Config struct {
	Credentials []Credential `json:"credentials" yaml:"credentials"`

	// Model is used by credentials that do not name their own.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// MaxAttempts bounds retries per call. Zero retries until the
	// context is done.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Client is a rotating-credential judge over OpenAI-compatible chat
// completions. Every attempt takes the next credential from the pool,
// so a rate-limited endpoint does not stall the whole run.
type Client struct {
	pool        *Pool
	clients     []openai.Client
	models      []string
	maxAttempts int
}

// NewClient builds a Client, one HTTP client per credential.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("judge: nil config")
	}
	pool, err := NewPool(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	c := &Client{pool: pool, maxAttempts: cfg.MaxAttempts}
	for i, cred := range pool.Credentials() {
		opts := []option.RequestOption{option.WithAPIKey(expandEnv(cred.APIKey))}
		if cred.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cred.BaseURL))
		}
		// Retries stay in Complete so each attempt rotates credentials.
		opts = append(opts, option.WithMaxRetries(0))
		c.clients = append(c.clients, openai.NewClient(opts...))
		model := cred.Model
		if model == "" {
			model = cfg.Model
		}
		if model == "" {
			return nil, fmt.Errorf("judge: credential %d names no model and no default is set", i)
		}
		c.models = append(c.models, model)
	}
	return c, nil
}

// expandEnv resolves $VAR and ${VAR} references, so config files can
// point at the environment instead of holding keys.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}

// Complete sends the request, rotating credentials and backing off on
// failures. A filtered response returns [ErrFiltered] immediately.
func (c *Client) Complete(ctx context.Context, req Request) ([]string, error) {
	attempts := c.maxAttempts
	if req.MaxAttempts != nil {
		attempts = *req.MaxAttempts
	}
	for attempt := 1; ; attempt++ {
		i := c.pool.Next()
		out, err := c.complete(ctx, &c.clients[i], c.models[i], req)
		if err == nil || errors.Is(err, ErrFiltered) {
			return out, err
		}
		if attempts > 0 && attempt >= attempts {
			return nil, fmt.Errorf("judge: giving up after %d attempts: %w", attempt, err)
		}
		wait := waitFromError(err.Error())
		slog.Warn("judge: request failed, backing off",
			"attempt", attempt, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) complete(ctx context.Context, client *openai.Client, model string, req Request) ([]string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.N > 1 {
		params.N = param.NewOpt(int64(req.N))
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Schema.Name,
					Schema: StrictSchema(req.Schema.Schema),
					Strict: param.NewOpt(true),
				},
			},
		}
	}
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		if strings.Contains(err.Error(), "response was filtered") {
			return nil, ErrFiltered
		}
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("judge: response has no choices")
	}
	out := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
			return nil, ErrFiltered
		}
		out = append(out, choice.Message.Content)
	}
	return out, nil
}

func convMessages(msgs []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var waitRE = regexp.MustCompile(`\s(\d+)\s(?:sec|min)?`)

// waitFromError extracts the wait a provider advertises in its error
// text. The last number wins; anything unparsable means 60 seconds. A
// minute of margin is added to stay clear of the window.
func waitFromError(msg string) time.Duration {
	secs := 60
	if ms := waitRE.FindAllStringSubmatch(msg, -1); len(ms) > 0 {
		if n, err := strconv.Atoi(ms[len(ms)-1][1]); err == nil {
			secs = n
		}
	}
	return time.Duration(secs+60) * time.Second
}
