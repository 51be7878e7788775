package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
	"github.com/nilltadios/gemini-qa-webapp/internal/prompt"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository"
	"github.com/nilltadios/gemini-qa-webapp/internal/textmetrics"
)

const qualityNotice = "\n\n---\n**⚠️ Quality Check Notice:** Maximum refinement iterations reached. " +
	"The response may not fully meet the following criteria:\n\n"

type CriteriaGenerator interface {
	Generate(ctx context.Context, composed prompt.Composed, caps domain.ToolCapabilities, history []domain.Turn) (domain.Criteria, error)
}

type Grader interface {
	Grade(ctx context.Context, response string, criteria domain.Criteria, caps domain.ToolCapabilities) domain.GradeVerdict
}

type Refiner interface {
	Refine(ctx context.Context, composed prompt.Composed, criteria domain.Criteria, current string, caps domain.ToolCapabilities, iteration int, history []domain.Turn, failed string) (string, error)
}

type AssistantConfig struct {
	Models                Models
	DefaultMaxRefinements int
	// Tolerance передается как есть, значение по умолчанию задает config
	Tolerance float64
	GradeMode domain.GradeMode
}

// AssistantDeps - зависимости контроллера. Агенты опциональны,
// по умолчанию строятся поверх LLM.
type AssistantDeps struct {
	LLM     llm.Client
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Config  AssistantConfig

	Criteria CriteriaGenerator
	Grader   Grader
	Refiner  Refiner
	// Runs - журнал прогонов, может быть nil
	Runs repository.RunRepository
}

// Assistant ведет один запрос от первичной генерации через цикл
// оценка/улучшение до финального ответа.
type Assistant struct {
	llm      llm.Client
	criteria CriteriaGenerator
	grader   Grader
	refiner  Refiner
	runs     repository.RunRepository
	logger   *zap.Logger
	metrics  *metrics.Metrics
	config   AssistantConfig
}

func NewAssistant(deps AssistantDeps) *Assistant {
	deps.Config.Models = deps.Config.Models.withDefaults()
	if deps.Config.DefaultMaxRefinements == 0 {
		deps.Config.DefaultMaxRefinements = domain.DefaultMaxRefinements
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if deps.Criteria == nil {
		deps.Criteria = NewCriteriaService(deps.LLM, deps.Logger, deps.Metrics, CriteriaConfig{
			Model:     deps.Config.Models.Capable,
			Tolerance: deps.Config.Tolerance,
		})
	}
	if deps.Grader == nil {
		deps.Grader = NewGraderService(deps.LLM, deps.Logger, deps.Metrics, GraderConfig{
			Model:     deps.Config.Models.Fast,
			Tolerance: deps.Config.Tolerance,
			Mode:      deps.Config.GradeMode,
		})
	}
	if deps.Refiner == nil {
		deps.Refiner = NewRefinerService(deps.LLM, deps.Logger, deps.Metrics, deps.Config.Models.Capable)
	}

	return &Assistant{
		llm:      deps.LLM,
		criteria: deps.Criteria,
		grader:   deps.Grader,
		refiner:  deps.Refiner,
		runs:     deps.Runs,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		config:   deps.Config,
	}
}

// Answer возвращает ошибку только если не удалась первичная генерация
// (или запрос невалиден). Все сбои агентов дальше не фатальны: остается
// лучший имеющийся ответ и предупреждение в результате.
func (a *Assistant) Answer(ctx context.Context, req *domain.QARequest, sink progress.Sink) (*domain.QAResult, error) {
	startTime := time.Now()
	sink = progress.Safe(sink, a.logger)

	if a.metrics != nil {
		a.metrics.IncRequestsInFlight()
		defer a.metrics.DecRequestsInFlight()
	}

	if err := req.Validate(); err != nil {
		if a.metrics != nil {
			a.metrics.RecordRequest("ask", "validation_error", time.Since(startTime))
		}
		return nil, err
	}
	req.Sanitize()

	caps := req.Capabilities.Effective()
	maxIter := req.MaxRefinements
	if maxIter == 0 {
		maxIter = a.config.DefaultMaxRefinements
	}

	a.logger.Info("processing request",
		zap.Int64("user_id", req.UserID),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("history_turns", len(req.History)),
		zap.Int("attachments", len(req.Attachments)),
		zap.Bool("search", caps.Search),
		zap.Bool("code_execution", caps.CodeExecution),
		zap.Bool("quality_agents", req.UseQualityAgents),
		zap.Int("max_refinements", maxIter),
	)

	composed := prompt.Compose(req.Prompt, req.History, req.Attachments)
	if n := len(composed.Files); n > 0 {
		sink.Emit(fmt.Sprintf("📎 Using %d uploaded file(s)...", n))
	}

	toolsMsg := "from knowledge"
	if d := caps.Describe(); d != "" {
		toolsMsg = "with " + d
	}
	sink.Emit(fmt.Sprintf("🚀 Generating initial response %s...", toolsMsg))

	initial, err := callModel(ctx, a.llm, a.metrics, roleGenerate, llm.Request{
		Model: a.config.Models.Capable,
		Parts: composed.Parts(),
		Tools: llm.SelectTools(caps.Search, caps.CodeExecution),
	})
	if err == nil && strings.TrimSpace(initial) == "" {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		sink.Emit("❌ Error: " + err.Error())
		a.logger.Error("initial generation failed",
			zap.Error(err),
			zap.Int64("user_id", req.UserID),
		)
		if a.metrics != nil {
			a.metrics.RecordRequest("ask", "generation_failed", time.Since(startTime))
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	// ответ модели не меняем, пробелы по краям остаются
	state := &domain.RefinementState{CurrentResponse: initial}
	result := &domain.QAResult{}

	if !req.UseQualityAgents {
		result.Status = domain.StatusQualityDisabled
	} else {
		a.runQualityLoop(ctx, req, composed, caps, maxIter, state, result, sink)
	}

	sink.Emit("✅ Done!")
	a.finish(ctx, req, caps, state, result, startTime)
	return result, nil
}

func (a *Assistant) runQualityLoop(ctx context.Context, req *domain.QARequest, composed prompt.Composed, caps domain.ToolCapabilities, maxIter int, state *domain.RefinementState, result *domain.QAResult, sink progress.Sink) {
	sink.Emit(fmt.Sprintf("📋 Creating quality criteria (%s)...", a.config.Models.Capable))
	criteria, err := a.criteria.Generate(ctx, composed, caps, req.History)
	if err != nil {
		sink.Emit("❌ Quality agent error: " + err.Error())
		result.Status = domain.StatusCriteriaFailed
		result.Warnings = append(result.Warnings, "quality criteria unavailable, returning initial response")
		return
	}

	for i := 1; i <= maxIter; i++ {
		// между итерациями, не посреди вызова
		if ctx.Err() != nil {
			a.logger.Info("request canceled, keeping current response", zap.Int("iteration", i))
			result.Status = domain.StatusCanceled
			result.Warnings = append(result.Warnings, "request canceled before quality check completed")
			return
		}

		state.Iteration = i
		sink.Emit("🔍 Checking quality + word count...")
		if llm.GradingTools(caps.Search, caps.CodeExecutionBlocked, state.CurrentResponse).CodeExecution {
			sink.Emit("💻 Grader using code execution for numeric verification...")
		}

		verdict := a.grader.Grade(ctx, state.CurrentResponse, criteria, caps)
		result.GraderCalls++

		if verdict.Outcome != domain.GradeError {
			if c := textmetrics.Count(state.CurrentResponse); c.Words > 0 {
				sink.Emit(fmt.Sprintf("📊 Response has %d words, %d sentences", c.Words, c.Sentences))
			}
		}

		switch verdict.Outcome {
		case domain.GradePass:
			sink.Emit("✅ Quality + word count check passed!")
			result.Status = domain.StatusPassed
			return

		case domain.GradeError:
			sink.Emit("❌ Grader error: " + verdict.FailedCriteria)
			sink.Emit("⚠️ Grader encountered an error - using current response")
			result.Status = domain.StatusGraderError
			result.Warnings = append(result.Warnings, "grader error: "+verdict.FailedCriteria)
			return
		}

		state.LastFailedCriteria = verdict.FailedCriteria
		if i == maxIter {
			break
		}

		sink.Emit("⚠️ Check failed - refining...")
		sink.Emit(fmt.Sprintf("✨ Improving response (%s iteration %d)...", a.config.Models.Capable, i))
		refined, err := a.refiner.Refine(ctx, composed, criteria, state.CurrentResponse, caps, i, req.History, state.LastFailedCriteria)
		result.RefinerCalls++
		if err != nil {
			sink.Emit("⚠️ Refinement failed - using current response")
			result.Status = domain.StatusRefinerFailed
			result.Warnings = append(result.Warnings, "refinement failed: "+err.Error())
			return
		}
		state.CurrentResponse = refined
	}

	result.Status = domain.StatusBoundReached
	sink.Emit(fmt.Sprintf("⚠️ Max iterations (%d) reached", maxIter))
	if v := (domain.GradeVerdict{FailedCriteria: state.LastFailedCriteria}); v.HasFeedback() {
		sink.Emit("❌ Failed criteria: " + state.LastFailedCriteria)
	}
}

func (a *Assistant) finish(ctx context.Context, req *domain.QARequest, caps domain.ToolCapabilities, state *domain.RefinementState, result *domain.QAResult, startTime time.Time) {
	counts := textmetrics.Count(state.CurrentResponse)
	result.Words = counts.Words
	result.Sentences = counts.Sentences
	result.Characters = counts.Characters
	result.Iterations = state.Iteration
	result.LastFailedCriteria = state.LastFailedCriteria

	result.Text = state.CurrentResponse
	if result.Status == domain.StatusBoundReached {
		if v := (domain.GradeVerdict{FailedCriteria: state.LastFailedCriteria}); v.HasFeedback() {
			result.Text += qualityNotice + state.LastFailedCriteria
		}
	}

	duration := time.Since(startTime)
	a.logger.Info("request processed",
		zap.Int64("user_id", req.UserID),
		zap.String("status", result.Status.String()),
		zap.Int("iterations", result.Iterations),
		zap.Int("grader_calls", result.GraderCalls),
		zap.Int("refiner_calls", result.RefinerCalls),
		zap.Int("words", result.Words),
		zap.Duration("duration", duration),
	)

	if a.metrics != nil {
		a.metrics.RecordRequest("ask", result.Status.String(), duration)
		if req.UseQualityAgents && result.Iterations > 0 {
			a.metrics.RecordIterations(result.Iterations)
		}
	}

	if a.runs != nil && req.UseQualityAgents {
		run := &domain.QualityRun{
			UserID:       req.UserID,
			Status:       result.Status,
			Iterations:   result.Iterations,
			GraderCalls:  result.GraderCalls,
			RefinerCalls: result.RefinerCalls,
			Words:        result.Words,
			Search:       caps.Search,
			Duration:     duration,
		}
		// запрос мог быть отменен, а запись в журнал все равно нужна
		if err := a.runs.Save(context.WithoutCancel(ctx), run); err != nil {
			a.logger.Warn("failed to save quality run", zap.Error(err))
		}
	}
}

// AnnotateError - текст ошибки для пользователя с сохранением уже
// полученного частичного ответа.
func AnnotateError(partial string, err error) string {
	if err == nil {
		return partial
	}
	if partial != "" {
		return partial + "\n\n[ERROR: " + err.Error() + "]"
	}
	return "Error: " + err.Error()
}
