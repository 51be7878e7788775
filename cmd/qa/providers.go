package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/config"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm/claude"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm/gemini"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm/mock"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm/openrouter"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository"
	"github.com/nilltadios/gemini-qa-webapp/internal/service"
)

// provider - клиент модели и, если провайдер умеет, хранилище файлов
type provider struct {
	client llm.Client
	files  llm.FileStore
}

func newProvider(ctx context.Context, c *config.Config, logger *zap.Logger) (provider, error) {
	timeout := c.LLMTimeout()

	switch c.LLM.Provider {
	case config.ProviderGemini:
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:  c.LLM.Gemini.APIKey,
			BaseURL: c.LLM.Gemini.BaseURL,
			Timeout: timeout,
		}, logger)
		if err != nil {
			return provider{}, fmt.Errorf("create gemini client: %w", err)
		}
		return provider{client: g, files: g}, nil
	case config.ProviderOpenRouter:
		return provider{client: openrouter.New(openrouter.Config{
			APIKey:  c.LLM.OpenRouter.APIKey,
			BaseURL: c.LLM.OpenRouter.BaseURL,
			Timeout: timeout,
		}, logger)}, nil
	case config.ProviderAnthropic:
		return provider{client: claude.New(claude.Config{
			APIKey:  c.LLM.Anthropic.APIKey,
			BaseURL: c.LLM.Anthropic.BaseURL,
			Timeout: timeout,
		}, logger)}, nil
	case config.ProviderMock:
		return provider{client: offlineClient(), files: mock.NewFileStore()}, nil
	}
	return provider{}, fmt.Errorf("%w: %q", config.ErrInvalidProvider, c.LLM.Provider)
}

// offlineClient отвечает без сети: грейдер всегда ставит pass
func offlineClient() *mock.Client {
	c := mock.New()
	c.Handler = func(req llm.Request) (string, error) {
		if strings.HasPrefix(req.Text(), "Grade this response") {
			return "GRADE: pass\nFAILED_CRITERIA: None", nil
		}
		return c.Response, nil
	}
	return c
}

func newAssistant(c *config.Config, p provider, runs repository.RunRepository, logger *zap.Logger, m *metrics.Metrics) *service.Assistant {
	capable, fast := c.Models()
	return service.NewAssistant(service.AssistantDeps{
		LLM:     p.client,
		Logger:  logger,
		Metrics: m,
		Config: service.AssistantConfig{
			Models:                service.Models{Capable: capable, Fast: fast},
			DefaultMaxRefinements: c.Quality.MaxRefinements,
			Tolerance:             c.Quality.Tolerance,
			GradeMode:             domain.GradeMode(c.Quality.GradeMode),
		},
		Runs: runs,
	})
}
