package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kishek/graph-store/dispatch"
)

// Client talks to a Handler over HTTP, retrying 5xx responses with
// exponential backoff (base 100ms, factor 2, max 3 attempts) per spec §6.
type Client struct {
	baseURL string
	http    *http.Client

	baseDelay  time.Duration
	factor     float64
	maxAttempts int
}

// NewClient builds a Client against baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: 30 * time.Second},
		baseDelay:   100 * time.Millisecond,
		factor:      2,
		maxAttempts: 3,
	}
}

// Do sends env and decodes the JSON response into result (ignored if nil).
func (c *Client) Do(ctx context.Context, env dispatch.Envelope, result interface{}) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}

	delay := c.baseDelay
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.factor)
		}

		status, raw, err := c.post(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 500 {
			lastErr = fmt.Errorf("transport: server error %d: %s", status, raw)
			continue
		}
		if status >= 400 {
			return fmt.Errorf("transport: request failed %d: %s", status, raw)
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(raw, result)
	}
	return fmt.Errorf("transport: exhausted retries: %w", lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}
