package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// SearchResults - сколько результатов подмешивает web-плагин
	SearchResults int
}

// Client ходит в OpenRouter. Поиск делается через web-плагин,
// выполнения кода и загрузки файлов у OpenRouter нет.
type Client struct {
	apiKey        string
	baseURL       string
	searchResults int
	client        *http.Client
	logger        *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.SearchResults == 0 {
		cfg.SearchResults = 5
	}

	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       cfg.BaseURL,
		searchResults: cfg.SearchResults,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

// maxResponseBytes - ответы длиннее считаем сломанными
const maxResponseBytes = 8 << 20

func (c *Client) buildRequest(r llm.Request) chatRequest {
	req := chatRequest{
		Model:    r.Model,
		Messages: []chatMessage{{Role: "user", Content: r.Text()}},
	}
	if r.Tools.Search {
		req.Plugins = []webPlugin{{ID: "web", MaxResults: c.searchResults}}
	}
	return req
}

func (c *Client) Generate(ctx context.Context, r llm.Request) (string, error) {
	if r.HasFiles() {
		return "", llm.ErrFilesNotAllowed
	}
	if r.Tools.CodeExecution {
		c.logger.Debug("code execution is not available on openrouter, ignoring",
			zap.String("model", r.Model),
		)
	}

	payload, err := json.Marshal(c.buildRequest(r))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/nilltadios/gemini-qa-webapp")
	httpReq.Header.Set("X-Title", "Gemini QA Assistant")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", llm.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("openrouter request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", r.Model),
		)
		return "", classify(resp.StatusCode, body)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	// ошибка провайдера может прийти и со статусом 200
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", llm.ErrRequestFailed, out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", llm.ErrEmptyResponse
	}

	if out.Usage != nil {
		c.logger.Debug("openrouter usage",
			zap.String("model", r.Model),
			zap.Int("prompt_tokens", out.Usage.PromptTokens),
			zap.Int("completion_tokens", out.Usage.CompletionTokens),
			zap.String("finish_reason", out.Choices[0].FinishReason),
		)
	}
	return out.Choices[0].Message.Content, nil
}

var _ llm.Client = (*Client)(nil)
