package nl2sql

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

type BackendConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// BackendClient posts structured generation requests to a remote
// generation service and reads back {"sql": "..."}.
type BackendClient struct {
	endpoint string
	client   *http.Client
}

func NewBackendClient(cfg BackendConfig) (*BackendClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("generation endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BackendClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *BackendClient) Translate(ctx context.Context, req Request) (Result, error) {
	payload, err := req.Payload()
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal generation payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response body: %v", ErrGenerationUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status=%d body=%s", ErrGenerationUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed Response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrGenerationUnavailable, err)
	}
	if strings.TrimSpace(parsed.SQL) == "" {
		return Result{}, ErrGenerationEmpty
	}
	mode := req.Mode
	if mode == "" {
		mode = "multi"
	}
	return Result{
		SQL:      parsed.SQL,
		Provider: "backend",
		Mode:     mode,
	}, nil
}
