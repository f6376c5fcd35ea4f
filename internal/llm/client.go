// Package llm invokes a hosted foundation model over its HTTP invoke
// API. The request and reply envelopes differ per model family, so the
// client binds a model ID at construction and picks the matching wire
// shape.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/fault"
	"github.com/askdb/askdb/internal/observability"
)

type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Invoker is the inference seam used by the SQL generator. Invoke
// returns the model's raw completion text.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	ModelID string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	modelID string
	shape   replyShape
	client  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		return nil, fmt.Errorf("model id is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		modelID: modelID,
		shape:   shapeForModel(modelID),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	payload := c.shape.payload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fault.Wrap(fault.GenerationFailed, "marshal invoke payload", err)
	}

	endpoint := c.baseURL + "/model/" + url.PathEscape(c.modelID) + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fault.Wrap(fault.GenerationFailed, "build invoke request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	defer func() { observability.ObserveInference(time.Since(start)) }()

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fault.Wrap(fault.Timeout, "model invocation timed out", err)
		}
		return "", fault.Wrap(fault.GenerationFailed, "request model invocation", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Wrap(fault.GenerationFailed, "read invoke response body", err)
	}
	if resp.StatusCode >= 400 {
		return "", classifyStatus(resp.StatusCode, rawBody)
	}

	text, err := c.shape.parse(rawBody)
	if err != nil {
		return "", fault.Wrap(fault.GenerationFailed, "decode invoke response",
			&Error{Class: ClassMalformed, Status: resp.StatusCode, Message: "malformed model reply", Err: err})
	}
	return text, nil
}

// classifyStatus maps the invoke API's HTTP failures onto typed
// inference classes. All of them surface as generation failures to the
// pipeline; the timeout fault kind is reserved for deadline expiry.
func classifyStatus(status int, body []byte) error {
	detail := fmt.Sprintf("status=%d body=%s", status, truncate(string(body), 512))
	invokeErr := &Error{Status: status}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		invokeErr.Class = ClassAccessDenied
		invokeErr.Message = "model access denied: " + detail
	case http.StatusNotFound:
		invokeErr.Class = ClassNotFound
		invokeErr.Message = "model not found: " + detail
	case http.StatusTooManyRequests:
		invokeErr.Class = ClassThrottled
		invokeErr.Message = "model throttled: " + detail
	default:
		invokeErr.Class = ClassUnknown
		invokeErr.Message = "model invocation failed: " + detail
	}
	return fault.Wrap(fault.GenerationFailed, "model invocation rejected", invokeErr)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// replyShape captures the per-family request body and reply parsing.
type replyShape interface {
	payload(req Request) map[string]any
	parse(body []byte) (string, error)
}

func shapeForModel(modelID string) replyShape {
	if strings.Contains(strings.ToLower(modelID), "titan") {
		return textShape{}
	}
	return messagesShape{}
}

// messagesShape is the conversational envelope used by chat-tuned
// models: a messages array in, content blocks out.
type messagesShape struct{}

func (messagesShape) payload(req Request) map[string]any {
	return map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        req.MaxTokens,
		"temperature":       req.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}
}

func (messagesShape) parse(body []byte) (string, error) {
	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode messages reply: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty content blocks in reply")
	}
	return parsed.Content[0].Text, nil
}

// textShape is the single-turn text envelope: inputText in, a results
// array with outputText out.
type textShape struct{}

func (textShape) payload(req Request) map[string]any {
	return map[string]any{
		"inputText": req.Prompt,
		"textGenerationConfig": map[string]any{
			"maxTokenCount": req.MaxTokens,
			"temperature":   req.Temperature,
		},
	}
}

func (textShape) parse(body []byte) (string, error) {
	var parsed struct {
		Results []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode text reply: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", fmt.Errorf("empty results in reply")
	}
	return parsed.Results[0].OutputText, nil
}
