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

	"github.com/askdata/askdata/internal/prompt"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator renders the grounding prompt locally and completes it
// through an OpenAI-compatible chat completions endpoint.
type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = prompt.ModeMulti
	}
	rendered, err := prompt.Render(mode, req.PromptTables(), req.Question)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(buildOpenAIPayload(t.model, t.temperature, rendered))
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: request chat completion: %v", ErrGenerationUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read chat response body: %v", ErrGenerationUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("%w: chat completion failed status=%d body=%s", ErrGenerationUnavailable, resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: decode chat completion response: %v", ErrGenerationUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty chat completion choices", ErrGenerationUnavailable)
	}

	sql := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if sql == "" {
		return Result{}, ErrGenerationEmpty
	}
	return Result{
		SQL:      sql,
		Provider: "openai-compatible",
		Model:    t.model,
		Mode:     mode,
	}, nil
}

// The rendered prompt already carries every rule, so it goes out as the
// only user message.
func buildOpenAIPayload(model string, temperature float64, rendered string) map[string]any {
	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": rendered},
		},
		"temperature": temperature,
	}
}
