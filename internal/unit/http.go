package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of a unit response is read.
const maxResponseBytes = 4 << 20

// HTTPUnit invokes a remote compute worker over JSON HTTP, POSTing the
// Input and decoding the Output. Transport failures and 5xx responses
// surface as plain errors (retryable); 4xx responses wrap ErrRejected.
type HTTPUnit struct {
	name   string
	url    string
	client *http.Client
}

var _ Unit = (*HTTPUnit)(nil)

// NewHTTPUnit creates a caller for the worker at url. The client
// timeout is a transport backstop; per-attempt deadlines come from the
// caller's context.
func NewHTTPUnit(name, url string, timeout time.Duration) *HTTPUnit {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPUnit{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (u *HTTPUnit) Name() string {
	return u.name
}

func (u *HTTPUnit) Execute(ctx context.Context, in Input) (*Output, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("unit %s: marshal input: %w", u.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unit %s: build request: %w", u.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("unit %s: read response: %w", u.name, err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("unit %s: status %d: %s: %w",
			u.name, resp.StatusCode, snippet(data), ErrRejected)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unit %s: status %d: %s", u.name, resp.StatusCode, snippet(data))
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unit %s: decode response: %w", u.name, err)
	}
	return &out, nil
}

// snippet trims a response body for inclusion in an error message.
func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "(empty body)"
	}
	return s
}
