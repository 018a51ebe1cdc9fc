package summarizer

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

	"github.com/sirupsen/logrus"
)

// Client implements Summarizer against an OpenAI-compatible chat completions
// API (OpenRouter by default).
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	timeout time.Duration
	log     logrus.FieldLogger
}

var _ Summarizer = (*Client)(nil)

// NewClient builds a client. timeout bounds a whole Complete call, but only
// the wait for response headers of a Stream; the stream itself lives as long
// as the caller's context.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Transport: transport},
		timeout: timeout,
		log:     logger.WithField("component", "summarizer"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete runs a non-streaming completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, system, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return cr.Choices[0].Message.Content, nil
}

// Stream runs a streamed completion. The request is made before returning,
// so upstream errors surface here rather than mid-stream.
func (c *Client) Stream(ctx context.Context, system, prompt string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, system, prompt, true)
	if err != nil {
		return nil, err
	}
	return &sseReader{body: resp.Body, scanner: newSSEScanner(resp.Body)}, nil
}

func (c *Client) do(ctx context.Context, system, prompt string, stream bool) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("llm client misconfigured: missing api key")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream: stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.WithField("status", resp.StatusCode).Warn("Completion request rejected")
		return nil, fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return resp, nil
}

func newSSEScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return s
}

// sseReader decodes "data:" events of a chat completion stream into the
// concatenated delta text. It ends at "[DONE]" or the end of the body.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending []byte
	done    bool
}

func (r *sseReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil {
				return 0, fmt.Errorf("read stream: %w", err)
			}
			return 0, io.EOF
		}

		line := strings.TrimSpace(r.scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Blank separators, comments and other SSE fields.
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			r.done = true
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return 0, fmt.Errorf("decode stream chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			r.pending = append(r.pending, choice.Delta.Content...)
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *sseReader) Close() error {
	return r.body.Close()
}
