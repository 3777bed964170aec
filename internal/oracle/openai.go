package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/telemetry"
)

const maxResponseBytes = 4 << 20

// Config controls the chat-completions client.
type Config struct {
	APIKey string
	// BaseURL defaults to the public OpenAI endpoint; point it at any
	// compatible server.
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxConcurrent bounds in-flight requests. Zero means unbounded.
	MaxConcurrent int
}

// Client implements Oracle over an OpenAI-compatible chat-completions
// endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    chan struct{}
	logger     *zap.Logger
}

// OracleError reports a failed exchange with the model endpoint.
type OracleError struct {
	StatusCode int
	Message    string
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle: status %d: %s", e.StatusCode, e.Message)
}

// NewClient builds a Client. The API key is required.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: api key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-5-nano"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxConcurrent > 0 {
		limiter = make(chan struct{}, cfg.MaxConcurrent)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// wire types for the chat completions API
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string       `json:"type"`
	JSONSchema *namedSchema `json:"json_schema,omitempty"`
}

type namedSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *apiError    `json:"error"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Classify sends one structured completion and returns the model's JSON
// payload verbatim.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (json.RawMessage, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	kind := req.Kind
	if kind == "" {
		kind = req.SchemaName
	}
	start := time.Now()
	raw, err := c.complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.ObserveOracle(kind, status, time.Since(start))
	return raw, err
}

func (c *Client) complete(ctx context.Context, req ClassifyRequest) (json.RawMessage, error) {
	var messages []chatMessage
	if req.SystemInstructions != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemInstructions})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Text})

	body := chatRequest{Model: c.cfg.Model, Messages: messages}
	if len(req.Schema) > 0 {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &namedSchema{
				Name:   req.SchemaName,
				Strict: true,
				Schema: req.Schema,
			},
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read oracle response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		var parsed chatResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, &OracleError{StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &OracleError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response body: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &OracleError{StatusCode: resp.StatusCode, Message: "response carried no choices"}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, &OracleError{StatusCode: resp.StatusCode, Message: "response carried empty content"}
	}
	if !json.Valid([]byte(content)) {
		return nil, &OracleError{StatusCode: resp.StatusCode, Message: "model content is not valid JSON"}
	}

	c.logger.Debug("oracle call complete",
		zap.String("model", c.cfg.Model),
		zap.String("schema", req.SchemaName),
		zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
		zap.Int("completion_tokens", parsed.Usage.CompletionTokens))
	return json.RawMessage(content), nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("oracle slot wait canceled: %w", ctx.Err())
	}
}

func (c *Client) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
