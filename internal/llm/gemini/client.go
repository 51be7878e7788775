package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	genai  *genai.Client
	logger *zap.Logger

	// нативные конфиги по ToolConfig.Index, строятся один раз
	configs [4]*genai.GenerateContentConfig
}

func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c := &Client{genai: gc, logger: logger}
	for i, tc := range llm.AllToolConfigs() {
		c.configs[i] = buildConfig(tc)
	}
	return c, nil
}

// buildConfig - по одному genai.Tool на каждый инструмент
func buildConfig(tc llm.ToolConfig) *genai.GenerateContentConfig {
	var tools []*genai.Tool
	if tc.Search {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if tc.CodeExecution {
		tools = append(tools, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
	}
	return &genai.GenerateContentConfig{Tools: tools}
}

func (c *Client) Generate(ctx context.Context, r llm.Request) (string, error) {
	parts := make([]*genai.Part, 0, len(r.Parts))
	for _, p := range r.Parts {
		if p.File != nil {
			parts = append(parts, genai.NewPartFromURI(p.File.URI, p.File.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, r.Model, contents, c.configs[r.Tools.Index()])
	if err != nil {
		return "", mapError(err)
	}

	text := resp.Text()
	c.logger.Debug("gemini response",
		zap.String("model", r.Model),
		zap.Stringer("tools", r.Tools),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) Upload(ctx context.Context, path, displayName, mimeType string) (llm.FileRef, error) {
	if displayName == "" {
		displayName = filepath.Base(path)
	}
	f, err := c.genai.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return llm.FileRef{}, fmt.Errorf("%w: %v", llm.ErrUploadFailed, mapError(err))
	}
	return llm.FileRef{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if _, err := c.genai.Files.Delete(ctx, name, nil); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrDeleteFailed, mapError(err))
	}
	return nil
}

// mapError переводит ошибки genai в наши sentinel-ошибки
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return llm.ErrAuthFailed
		case http.StatusTooManyRequests:
			return llm.ErrRateLimit
		}
		return fmt.Errorf("%w: status %d: %s", llm.ErrRequestFailed, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", llm.ErrRequestFailed, err)
}

var (
	_ llm.Client    = (*Client)(nil)
	_ llm.FileStore = (*Client)(nil)
)
