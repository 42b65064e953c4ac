package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.NotEmpty(t, req.Messages)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func collect(chunks <-chan string, errs <-chan error) (string, error) {
	var out string
	for c := range chunks {
		out += c
	}
	return out, <-errs
}

func TestStreamCompletion(t *testing.T) {
	srv := sseServer(t, []string{"<svg>", "<path d=\"M0 0", " L9 9\"/>", "</svg>"})
	defer srv.Close()

	c := NewOllamaClient("test-model", srv.URL, zerolog.Nop())
	chunks, errs := c.StreamCompletion(context.Background(), []Message{
		{Role: "user", Content: "Draw: a line"},
	})

	out, err := collect(chunks, errs)
	require.NoError(t, err)
	assert.Equal(t, `<svg><path d="M0 0 L9 9"/></svg>`, out)
}

func TestStreamSkipsEmptyAndMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOllamaClient("", srv.URL, zerolog.Nop())
	out, err := collect(c.StreamCompletion(context.Background(), nil))
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestStreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient("", srv.URL, zerolog.Nop())
	out, err := collect(c.StreamCompletion(context.Background(), nil))
	assert.Empty(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestStreamEngineUnreachable(t *testing.T) {
	c := NewOllamaClient("", "http://127.0.0.1:1", zerolog.Nop())
	_, err := collect(c.StreamCompletion(context.Background(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestStreamRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewOllamaClient("", "http://127.0.0.1:1", zerolog.Nop())
	_, err := collect(c.StreamCompletion(ctx, nil))
	require.Error(t, err)
}
