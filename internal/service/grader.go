package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/textmetrics"
)

type GraderConfig struct {
	Model string
	// Tolerance - допустимое отклонение по числу слов, 0 значит точно
	Tolerance float64
	Mode      domain.GradeMode
}

type GraderService struct {
	llm       llm.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics
	model     string
	tolerance float64
	mode      domain.GradeMode
}

func NewGraderService(client llm.Client, logger *zap.Logger, m *metrics.Metrics, cfg GraderConfig) *GraderService {
	if cfg.Model == "" {
		cfg.Model = Models{}.withDefaults().Fast
	}
	if !cfg.Mode.IsValid() {
		cfg.Mode = domain.GradeStructured
	}
	return &GraderService{
		llm:       client,
		logger:    logger,
		metrics:   m,
		model:     cfg.Model,
		tolerance: cfg.Tolerance,
		mode:      cfg.Mode,
	}
}

// Grade никогда не возвращает ошибку: сбой вызова превращается в GradeError.
func (s *GraderService) Grade(ctx context.Context, response string, criteria domain.Criteria, caps domain.ToolCapabilities) domain.GradeVerdict {
	tools := llm.GradingTools(caps.Search, caps.CodeExecutionBlocked, response)
	counts := textmetrics.Count(response)

	reply, err := callModel(ctx, s.llm, s.metrics, roleGrade,
		llm.NewRequest(s.model, tools, llm.TextPart(s.buildPrompt(response, criteria, counts))))
	if err != nil {
		s.logger.Warn("grader call failed", zap.Error(err))
		verdict := domain.GradeVerdict{Outcome: domain.GradeError, FailedCriteria: err.Error()}
		s.record(verdict)
		return verdict
	}

	var verdict domain.GradeVerdict
	if s.mode == domain.GradeLenient {
		verdict = parseLenient(reply)
	} else {
		verdict = parseStructured(reply)
	}

	s.logger.Debug("response graded",
		zap.String("outcome", verdict.Outcome.String()),
		zap.Int("words", counts.Words),
		zap.Stringer("tools", tools),
	)
	s.record(verdict)
	return verdict
}

func (s *GraderService) record(v domain.GradeVerdict) {
	if s.metrics != nil {
		s.metrics.RecordGrade(v.Outcome.String())
	}
}

func (s *GraderService) buildPrompt(response string, criteria domain.Criteria, counts textmetrics.Metrics) string {
	var sb strings.Builder
	if s.mode == domain.GradeLenient {
		sb.WriteString("Grade this response. Reply ONLY 'pass' or 'no'.\n\n")
	} else {
		sb.WriteString("Grade this response against the criteria.\n\n")
	}
	sb.WriteString(`IMPORTANT: If the criteria specify a word count requirement (e.g., "500 words", "200-300 words"):` + "\n")
	sb.WriteString("1. Check if the actual word count matches the requirement\n")
	fmt.Fprintf(&sb, "2. Fail the response if word count is off by more than %s\n", percent(s.tolerance))
	sb.WriteString("3. Word count is the MOST IMPORTANT criterion to check\n\n")
	if s.mode != domain.GradeLenient {
		sb.WriteString("Reply in this format:\n")
		sb.WriteString("GRADE: [pass/no]\n")
		sb.WriteString(`FAILED_CRITERIA: [list specific criteria that failed, or "None" if passed]` + "\n\n")
	}
	sb.WriteString("CRITERIA:\n")
	sb.WriteString(criteria.String())
	sb.WriteString("\n\nRESPONSE:\n")
	sb.WriteString(response)
	fmt.Fprintf(&sb, "\n\nACTUAL WORD COUNT: %d words, %d sentences, %d characters\n",
		counts.Words, counts.Sentences, counts.Characters)
	return sb.String()
}

// parseStructured ищет строки GRADE: и FAILED_CRITERIA:.
// Нет строки GRADE или непонятное значение - считаем fail.
func parseStructured(reply string) domain.GradeVerdict {
	grade := "no"
	var failed string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		switch {
		case strings.HasPrefix(line, "GRADE:"):
			grade = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "GRADE:")))
		case strings.HasPrefix(line, "FAILED_CRITERIA:"):
			failed = strings.TrimSpace(strings.TrimPrefix(line, "FAILED_CRITERIA:"))
		}
	}

	if strings.Contains(grade, "pass") {
		return domain.GradeVerdict{Outcome: domain.GradePass, FailedCriteria: failed}
	}
	return domain.GradeVerdict{Outcome: domain.GradeFail, FailedCriteria: failed}
}

// parseLenient: pass если где угодно в ответе есть "pass".
// "I cannot pass this" тоже засчитается как pass, это известная особенность режима.
func parseLenient(reply string) domain.GradeVerdict {
	if strings.Contains(strings.ToLower(reply), "pass") {
		return domain.GradeVerdict{Outcome: domain.GradePass}
	}
	return domain.GradeVerdict{Outcome: domain.GradeFail}
}
