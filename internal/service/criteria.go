package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/prompt"
)

type CriteriaConfig struct {
	Model     string
	Tolerance float64
}

// CriteriaService - один вызов модели, который формулирует критерии качества.
type CriteriaService struct {
	llm       llm.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics
	model     string
	tolerance float64
}

func NewCriteriaService(client llm.Client, logger *zap.Logger, m *metrics.Metrics, cfg CriteriaConfig) *CriteriaService {
	if cfg.Model == "" {
		cfg.Model = Models{}.withDefaults().Capable
	}
	return &CriteriaService{
		llm:       client,
		logger:    logger,
		metrics:   m,
		model:     cfg.Model,
		tolerance: cfg.Tolerance,
	}
}

func (s *CriteriaService) Generate(ctx context.Context, composed prompt.Composed, caps domain.ToolCapabilities, history []domain.Turn) (domain.Criteria, error) {
	// критерии генерируются без выполнения кода
	tools := llm.SelectTools(caps.Search, false)

	text, err := callModel(ctx, s.llm, s.metrics, roleCriteria,
		llm.NewRequest(s.model, tools, llm.TextPart(s.buildPrompt(composed.Text, history))))
	if err != nil {
		s.logger.Warn("criteria generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", domain.ErrCriteriaFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %v", domain.ErrCriteriaFailed, domain.ErrEmptyResponse)
	}

	s.logger.Debug("criteria generated", zap.Int("length", len(text)))
	return domain.Criteria(text), nil
}

func (s *CriteriaService) buildPrompt(composed string, history []domain.Turn) string {
	var sb strings.Builder
	sb.WriteString("Create quality criteria for this prompt.\n\n")
	sb.WriteString("IMPORTANT: If the prompt specifies or implies a word count requirement ")
	sb.WriteString(`(e.g., "500 words", "200-300 words", "summarize in 150 words"):` + "\n")
	sb.WriteString("- Include a specific criterion about meeting that exact word count\n")
	sb.WriteString("- Be precise about the required word count and mark it as the most important criterion\n")
	fmt.Fprintf(&sb, "- Example: \"Must be approximately 500 words (±%s)\"\n", percent(s.tolerance))
	sb.WriteString(prompt.HistoryBlock(history))
	sb.WriteString("\n\nUSER PROMPT:\n")
	sb.WriteString(composed)
	sb.WriteString("\n")
	return sb.String()
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
