// Package solver talks to the external s(CASP) reasoning service.
package solver

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

	"github.com/kaptinlin/jsonrepair"
)

// maxAnswerSize caps how much of a solver answer is read (1MB).
const maxAnswerSize = 1 << 20

var (
	// ErrStatus is returned for non-2xx solver responses.
	ErrStatus = errors.New("solver returned non-success status")
	// ErrEmptyBody is returned when the solver answers with nothing.
	ErrEmptyBody = errors.New("solver returned an empty body")
	// ErrUnparsable is returned when a JSON answer cannot be decoded.
	ErrUnparsable = errors.New("solver returned an unparsable body")
)

// Solver answers one query literal with the solver's raw text.
type Solver interface {
	Solve(ctx context.Context, literal string) (string, error)
}

// Client is an HTTP Solver posting JSON-encoded literals to one endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient returns a client for the endpoint at url. A nil httpClient uses
// a client with a 30 second overall timeout; per-call deadlines come from
// the caller's context.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, httpClient: httpClient}
}

// URL returns the solver endpoint.
func (c *Client) URL() string {
	return c.url
}

// Solve posts literal and returns the decoded answer.
func (c *Client) Solve(ctx context.Context, literal string) (string, error) {
	payload, err := json.Marshal(literal)
	if err != nil {
		return "", fmt.Errorf("encode literal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post to solver: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return "", fmt.Errorf("read solver answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return DecodeAnswer(data)
}

// DecodeAnswer turns a solver response body into answer text. JSON strings
// are unquoted, JSON objects yield their "result" field, arrays of strings
// are joined by newlines. Anything that is not JSON is returned as sent,
// minus one line terminator, so a plain-text answer ends where the equivalent
// JSON string would; severity rules count trailing characters.
// Malformed JSON is repaired once before giving up.
func DecodeAnswer(data []byte) (string, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", ErrEmptyBody
	}
	switch s[0] {
	case '"', '{', '[':
	default:
		return trimLineTerminator(string(data)), nil
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(s)
		if repairErr != nil {
			return "", fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		if err := json.Unmarshal([]byte(repaired), &v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
	}
	return answerText(v)
}

// trimLineTerminator drops a single trailing "\n" or "\r\n".
func trimLineTerminator(s string) string {
	if t, ok := strings.CutSuffix(s, "\n"); ok {
		return strings.TrimSuffix(t, "\r")
	}
	return s
}

func answerText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", ErrEmptyBody
		}
		return t, nil
	case map[string]any:
		for _, key := range []string{"result", "answer", "output"} {
			if s, ok := t[key].(string); ok {
				return answerText(s)
			}
		}
		return "", fmt.Errorf("%w: object without result field", ErrUnparsable)
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("%w: non-string array item", ErrUnparsable)
			}
			lines = append(lines, s)
		}
		return answerText(strings.Join(lines, "\n"))
	default:
		return "", fmt.Errorf("%w: unexpected %T", ErrUnparsable, v)
	}
}
