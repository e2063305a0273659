package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is an OpenAI-compatible inference endpoint
	DefaultBaseURL = "https://inference.do-ai.run"
	// DefaultTimeout is the hard per-request ceiling for grading calls
	DefaultTimeout = 240 * time.Second
	// DefaultModel is the default multimodal grading model
	DefaultModel = "openai-gpt-oss-120b"
)

// ErrRateLimited is returned when the API keeps answering 429 and the caller
// must slow down rather than retry the content.
var ErrRateLimited = errors.New("llm rate limit exceeded")

// StatusError carries a non-2xx response so callers can decide retryability
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference API error (status %d): %s", e.Code, e.Body)
}

// Retryable reports whether the status indicates a transient condition
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusBadGateway ||
		e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code >= 500
}

// IsRateLimit reports whether err is a 429 status error
func IsRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// IsRetryable reports whether err is worth another attempt: transient HTTP
// statuses, timeouts, and transport failures qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Transport-level failures (connection reset, EOF) arrive as url.Error
	// wrapped; treat anything that is not a status error as transient.
	return true
}

// Client handles OpenAI-compatible chat completion calls, text or multimodal
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
}

// Config holds configuration for the inference client
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Model   string
}

// NewClient creates a new inference client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		model: config.Model,
	}
}

// ContentPart is one element of a multimodal message
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference, typically a base64 data URL
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part from raw image bytes
func ImagePart(imageBytes []byte, mime string) ContentPart {
	if mime == "" {
		mime = "image/jpeg"
	}
	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	return ContentPart{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", mime, encoded)},
	}
}

// Message is one chat message. Content is either a string (text-only) or a
// []ContentPart (multimodal); both marshal to valid OpenAI-compatible JSON.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// TextMessage builds a plain text message
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// PartsMessage builds a multimodal message from content parts
func PartsMessage(role string, parts []ContentPart) Message {
	return Message{Role: role, Content: parts}
}

// Request is an OpenAI-compatible chat completion request
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Choice represents a choice in the completion response
type Choice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response represents the response from the inference API
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ExtractContent extracts the first choice's text content
func (r *Response) ExtractContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Option mutates the outgoing request
type Option func(*Request)

// WithTemperature sets the sampling temperature
func WithTemperature(temp float64) Option {
	return func(req *Request) {
		req.Temperature = temp
	}
}

// WithMaxTokens sets the completion token budget
func WithMaxTokens(tokens int) Option {
	return func(req *Request) {
		req.MaxTokens = tokens
	}
}

// WithModel overrides the default model
func WithModel(model string) Option {
	return func(req *Request) {
		req.Model = model
	}
}

// ChatCompletion sends a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, options ...Option) (*Response, error) {
	req := Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0, // grading must be repeatable: same answer, same score
		MaxTokens:   8192,
		Stream:      false,
	}

	for _, opt := range options {
		opt(&req)
	}

	return c.send(ctx, req)
}

// Complete is a convenience wrapper returning only the response text
func (c *Client) Complete(ctx context.Context, messages []Message, options ...Option) (string, error) {
	resp, err := c.ChatCompletion(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from inference API")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// HealthCheck verifies the inference API is accessible
func (c *Client) HealthCheck(ctx context.Context) error {
	messages := []Message{
		TextMessage("user", "Say 'ok' if you can hear me."),
	}

	_, err := c.ChatCompletion(ctx, messages, WithMaxTokens(10))
	return err
}
