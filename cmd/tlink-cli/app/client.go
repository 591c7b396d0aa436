package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tellolink/tellolink/internal/drone"
)

// client is a thin HTTP client for the control daemon's API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}
}

// logResponse is the body of GET /log.
type logResponse struct {
	Success bool                      `json:"success"`
	Log     []drone.OperationLogEntry `json:"log"`
}

func (c *client) get(ctx context.Context, path string) (*drone.Outcome, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *client) post(ctx context.Context, path string, body any) (*drone.Outcome, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *client) do(ctx context.Context, method, path string, body any) (*drone.Outcome, error) {
	data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var out drone.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unexpected response from daemon: %w", err)
	}
	return &out, nil
}

func (c *client) operationLog(ctx context.Context) ([]drone.OperationLogEntry, error) {
	data, err := c.raw(ctx, http.MethodGet, "/log", nil)
	if err != nil {
		return nil, err
	}

	var resp logResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unexpected response from daemon: %w", err)
	}
	return resp.Log, nil
}

func (c *client) raw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach the control daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, fmt.Errorf("daemon returned %s: %s", resp.Status, string(data))
	}
	return data, nil
}
