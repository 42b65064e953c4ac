// Package llm streams chat completions from a local Ollama instance
// through its OpenAI-compatible API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Defaults match the drawing engine this module was built against: a
// local Ollama serving a small model with enough temperature to vary
// the artwork between requests.
const (
	DefaultModel       = "gpt-oss:20b"
	DefaultBaseURL     = "http://localhost:11434"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.9
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client streams text completions. Chunks arrive on the first channel
// in order; the second carries at most one terminal error. Both close
// when the stream ends.
type Client interface {
	StreamCompletion(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// OllamaClient talks to an Ollama /v1/chat/completions endpoint.
type OllamaClient struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
	Log         zerolog.Logger
}

// NewOllamaClient returns a client with the package defaults; empty
// arguments keep them.
func NewOllamaClient(model, baseURL string, log zerolog.Logger) *OllamaClient {
	c := &OllamaClient{
		Model:       DefaultModel,
		BaseURL:     DefaultBaseURL,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		HTTPClient:  &http.Client{Timeout: 10 * time.Minute},
		Log:         log,
	}
	if model != "" {
		c.Model = model
	}
	if baseURL != "" {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion starts a streaming completion and returns its
// chunk and error channels. Connection failures are reported on the
// error channel so the caller can tell "engine down" apart from a
// mid-stream stall.
func (c *OllamaClient) StreamCompletion(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		if err := c.stream(ctx, messages, chunks); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

func (c *OllamaClient) stream(ctx context.Context, messages []Message, chunks chan<- string) error {
	body, err := json.Marshal(chatRequest{
		Model:       c.Model,
		Messages:    messages,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("drawing engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("drawing engine error %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				return nil
			}
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.Log.Debug().Err(err).Str("data", data).Msg("skipping undecodable chunk")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		select {
		case chunks <- content:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
