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
	"github.com/nilltadios/gemini-qa-webapp/internal/textmetrics"
)

type RefinerService struct {
	llm     llm.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	model   string
}

func NewRefinerService(client llm.Client, logger *zap.Logger, m *metrics.Metrics, model string) *RefinerService {
	if model == "" {
		model = Models{}.withDefaults().Capable
	}
	return &RefinerService{
		llm:     client,
		logger:  logger,
		metrics: m,
		model:   model,
	}
}

// Refine возвращает полный новый текст ответа. Пустой ответ модели - ошибка.
func (s *RefinerService) Refine(ctx context.Context, composed prompt.Composed, criteria domain.Criteria, current string, caps domain.ToolCapabilities, iteration int, history []domain.Turn, failed string) (string, error) {
	tools := llm.SelectTools(caps.Search, false)
	req := llm.NewRequest(s.model, tools,
		llm.TextPart(s.buildPrompt(composed.Text, criteria, current, history, failed)))

	text, err := callModel(ctx, s.llm, s.metrics, roleRefine, req)
	if err != nil {
		s.logger.Warn("refinement failed",
			zap.Error(err),
			zap.Int("iteration", iteration),
		)
		return "", fmt.Errorf("%w: %v", domain.ErrRefinementFailed, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %v", domain.ErrRefinementFailed, domain.ErrEmptyResponse)
	}

	s.logger.Debug("response refined",
		zap.Int("iteration", iteration),
		zap.Int("words", textmetrics.Count(text).Words),
	)
	return text, nil
}

func (s *RefinerService) buildPrompt(composed string, criteria domain.Criteria, current string, history []domain.Turn, failed string) string {
	var sb strings.Builder
	sb.WriteString("Improve this response to meet ALL criteria.\n\n")
	sb.WriteString("PAY SPECIAL ATTENTION to word count requirements. If criteria specify a word count:\n")
	sb.WriteString("- Expand or condense the response to meet it exactly\n")
	sb.WriteString("- Maintain quality while hitting the target word count\n\n")
	fmt.Fprintf(&sb, "Current word count: %d words\n", textmetrics.Count(current).Words)
	sb.WriteString(prompt.HistoryBlock(history))

	sb.WriteString("\n\nORIGINAL PROMPT:\n")
	sb.WriteString(composed)
	sb.WriteString("\n\nCRITERIA:\n")
	sb.WriteString(criteria.String())

	if v := (domain.GradeVerdict{FailedCriteria: failed}); v.HasFeedback() {
		sb.WriteString("\n\nFAILED CRITERIA FROM LAST REVIEW:\n")
		sb.WriteString(strings.TrimSpace(failed))
	}

	sb.WriteString("\n\nRESPONSE TO IMPROVE:\n")
	sb.WriteString(current)
	sb.WriteString("\n\nProvide only the improved response.")
	return sb.String()
}
