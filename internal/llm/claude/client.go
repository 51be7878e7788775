package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

type Config struct {
	APIKey     string
	BaseURL    string
	MaxTokens  int64
	MaxRetries int
	Timeout    time.Duration
	// SearchUses - лимит вызовов web search за один запрос
	SearchUses int64
}

// Client - провайдер на Messages API. Поиск через серверный web_search,
// выполнения кода и файлов нет.
type Client struct {
	client     anthropic.Client
	maxTokens  int64
	searchUses int64
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.SearchUses == 0 {
		cfg.SearchUses = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:     anthropic.NewClient(opts...),
		maxTokens:  cfg.MaxTokens,
		searchUses: cfg.SearchUses,
		logger:     logger,
	}
}

func (c *Client) Generate(ctx context.Context, r llm.Request) (string, error) {
	if r.HasFiles() {
		return "", llm.ErrFilesNotAllowed
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.Model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.Text())),
		},
	}
	if r.Tools.Search {
		params.Tools = []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(c.searchUses),
			},
		}}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", mapError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	c.logger.Debug("anthropic response",
		zap.String("model", r.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("took", time.Since(start)),
	)

	// текст отдаем как есть, пустым считаем только пробельный
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return llm.ErrAuthFailed
		case http.StatusTooManyRequests:
			return llm.ErrRateLimit
		}
		return fmt.Errorf("%w: status %d", llm.ErrRequestFailed, apiErr.StatusCode)
	}
	return fmt.Errorf("%w: %v", llm.ErrRequestFailed, err)
}

var _ llm.Client = (*Client)(nil)
