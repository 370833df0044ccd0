package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

var testBackend = review.Backend{Provider: "anthropic", Model: "claude-sonnet-4"}

func sseHandler(t *testing.T, lines ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
		}
	}
}

func TestGenerateStreamsChunks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", sseHandler(t,
		`data: {"type":"chunk","text":"Hello"}`,
		`data: {"type":"chunk","text":" world"}`,
		`data: [DONE]`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	var chunks []string
	client := NewClient(server.URL, "")
	text, err := client.Generate(context.Background(), testBackend, "sys", []Message{{Role: "user", Content: "hi"}}, StreamOptions{
		OnChunk: func(c string) { chunks = append(chunks, c) },
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []string{"Hello", " world"}, chunks)
}

func TestGenerateDoneEventCarriesTail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", sseHandler(t,
		`data: {"type":"chunk","text":"partial"}`,
		`data: {"type":"done","text":" and the rest"}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	text, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{})

	require.NoError(t, err)
	assert.Equal(t, "partial and the rest", text)
}

func TestGenerateDoneEventResponseField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", sseHandler(t,
		`data: {"type":"chunk","text":"partial"}`,
		`data: {"type":"done","response":" via response"}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	text, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{})

	require.NoError(t, err)
	assert.Equal(t, "partial via response", text)
}

func TestGenerateMalformedLinesSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", sseHandler(t,
		`data: this is not json`,
		`: comment line`,
		`data: {"type":"chunk","text":"ok"}`,
		`data: [DONE]`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	text, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGenerateFallsBackOnStreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", sseHandler(t,
		`data: {"type":"error","error":"provider exploded"}`,
	))
	mux.HandleFunc("/v1/complete", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"fallback text"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	text, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{})

	require.NoError(t, err)
	assert.Equal(t, "fallback text", text)
}

func TestGenerateFallsBackOnIdleTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"text\":\"stuck\"}\n")
		flusher.Flush()
		// Never send another event; the consumer's idle timer must fire.
		<-r.Context().Done()
	})
	mux.HandleFunc("/v1/complete", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"completed instead"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	start := time.Now()
	text, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{
		IdleTimeout:  50 * time.Millisecond,
		TotalTimeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "completed instead", text)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestGenerateNoResponseData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", sseHandler(t, `data: [DONE]`))
	mux.HandleFunc("/v1/complete", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoResponseData))
}

func TestGenerateGatewayErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	mux.HandleFunc("/v1/complete", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Generate(context.Background(), testBackend, "", nil, StreamOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestCompleteEnvelopeFields(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"response":"a"}`, "a"},
		{`{"text":"b"}`, "b"},
		{`{"content":"c"}`, "c"},
		{`"bare string"`, "bare string"},
		{`plain text body`, "plain text body"},
	}
	for _, tc := range cases {
		got := extractCompletionText([]byte(tc.body))
		assert.Equal(t, tc.want, got, tc.body)
	}
}

func TestDataPayloadFraming(t *testing.T) {
	payload, ok := dataPayload("data: {\"a\":1}")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, payload)

	// Only one leading space is trimmed.
	payload, ok = dataPayload("data:  spaced")
	require.True(t, ok)
	assert.Equal(t, " spaced", payload)

	_, ok = dataPayload("event: chunk")
	assert.False(t, ok)
}
