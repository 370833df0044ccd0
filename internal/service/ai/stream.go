package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

// ErrNoResponseData is returned when both the stream and the complete
// fallback yielded no text.
var ErrNoResponseData = errors.New("no response data received")

const (
	DefaultIdleTimeout  = 30 * time.Second
	DefaultTotalTimeout = 180 * time.Second
)

// StreamOptions tunes one generation call. OnChunk, when set, receives
// each streamed text fragment as it arrives.
type StreamOptions struct {
	IdleTimeout  time.Duration
	TotalTimeout time.Duration
	OnChunk      func(text string)
}

type streamEvent struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate runs a prompt against the gateway, preferring the streaming
// endpoint and falling back to the complete endpoint when the stream
// fails, times out, or produces no usable characters. Only when both
// paths yield empty text does it fail.
func (c *Client) Generate(ctx context.Context, backend review.Backend, system string, messages []Message, opts StreamOptions) (string, error) {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = DefaultTotalTimeout
	}

	text, streamErr, timedOut := c.consumeStream(ctx, backend, system, messages, opts)
	if streamErr == nil && !timedOut && strings.TrimSpace(text) != "" {
		return text, nil
	}

	if timedOut {
		log.Printf("[gateway] stream timed out for %s, falling back to complete", backend)
	} else if streamErr != nil {
		log.Printf("[gateway] stream failed for %s: %v, falling back to complete", backend, streamErr)
	}

	fallback, err := c.Complete(ctx, backend, system, messages)
	if err == nil && strings.TrimSpace(fallback) != "" {
		return fallback, nil
	}

	if streamErr != nil {
		return "", streamErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoResponseData, err)
	}
	return "", ErrNoResponseData
}

// consumeStream reads the event stream, demultiplexing chunk/done/error
// events and racing every read against the sooner of the idle and total
// deadlines. The response body is released on every exit path.
func (c *Client) consumeStream(ctx context.Context, backend review.Backend, system string, messages []Message, opts StreamOptions) (text string, streamErr error, timedOut bool) {
	resp, err := c.Stream(ctx, backend, system, messages)
	if err != nil {
		return "", err, false
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return "", fmt.Errorf("unexpected stream content type %q", resp.Header.Get("Content-Type")), false
	}

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)

	go readLines(resp.Body, lines, done)

	var builder strings.Builder
	totalTimer := time.NewTimer(opts.TotalTimeout)
	defer totalTimer.Stop()
	idleTimer := time.NewTimer(opts.IdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return builder.String(), ctx.Err(), false
		case <-totalTimer.C:
			return builder.String(), nil, true
		case <-idleTimer.C:
			return builder.String(), nil, true
		case line, ok := <-lines:
			if !ok {
				// EOF without a done event still counts as a normal end;
				// the caller decides whether the output was usable.
				return builder.String(), nil, false
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(opts.IdleTimeout)

			payload, ok := dataPayload(line)
			if !ok {
				continue
			}
			if payload == "[DONE]" {
				return builder.String(), nil, false
			}

			var event streamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				log.Printf("[gateway] skipping malformed stream line: %v", err)
				continue
			}

			switch event.Type {
			case "chunk":
				chunk := event.Text
				if chunk == "" {
					chunk = event.Response
				}
				if chunk != "" {
					builder.WriteString(chunk)
					if opts.OnChunk != nil {
						opts.OnChunk(chunk)
					}
				}
			case "done":
				tail := event.Text
				if tail == "" {
					tail = event.Response
				}
				if tail != "" {
					builder.WriteString(tail)
				}
				return builder.String(), nil, false
			case "error":
				msg := event.Error
				if msg == "" {
					msg = "provider reported an unspecified error"
				}
				return builder.String(), errors.New(msg), false
			}
		}
	}
}

func readLines(body io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
}

// dataPayload returns the payload of a data: line with at most one
// leading space trimmed, per the gateway's framing.
func dataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := line[len("data:"):]
	payload = strings.TrimPrefix(payload, " ")
	return payload, true
}
