package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

// Message is one turn handed to the model gateway.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to the model gateway. The gateway exposes two endpoints:
// /v1/stream returning a data:-framed event stream, and /v1/complete
// returning the whole response at once.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client. The http client carries no overall
// timeout; stream reads are bounded by the consumer's own deadlines.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

type gatewayRequest struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	System   string    `json:"system_prompt,omitempty"`
	Messages []Message `json:"messages"`
}

// Stream opens an event-stream response for the given prompt. The caller
// owns the response body and must close it on every exit path.
func (c *Client) Stream(ctx context.Context, backend review.Backend, system string, messages []Message) (*http.Response, error) {
	return c.post(ctx, "/v1/stream", backend, system, messages)
}

// Complete performs the non-streaming call and extracts the response
// text, accepting either a bare string body or a JSON envelope with one
// of the known text-bearing fields.
func (c *Client) Complete(ctx context.Context, backend review.Backend, system string, messages []Message) (string, error) {
	resp, err := c.post(ctx, "/v1/complete", backend, system, messages)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading complete response: %w", err)
	}

	return extractCompletionText(body), nil
}

func (c *Client) post(ctx context.Context, path string, backend review.Backend, system string, messages []Message) (*http.Response, error) {
	payload, err := json.Marshal(gatewayRequest{
		Provider: backend.Provider,
		Model:    backend.Model,
		System:   system,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// completionFields are the envelope keys known to carry response text,
// checked in order.
var completionFields = []string{"response", "text", "content", "result", "output"}

func extractCompletionText(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err == nil {
		for _, field := range completionFields {
			if s, ok := envelope[field].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}

	var bare string
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}

	return trimmed
}
