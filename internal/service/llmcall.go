package service

import (
	"context"
	"time"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
)

// роли агентов, они же label'ы в метриках
const (
	roleGenerate = "generate"
	roleCriteria = "criteria"
	roleGrade    = "grade"
	roleRefine   = "refine"
)

// Models - два уровня моделей: сильная для генерации, критериев и
// улучшения, быстрая для оценки.
type Models struct {
	Capable string
	Fast    string
}

func (m Models) withDefaults() Models {
	if m.Capable == "" {
		m.Capable = "gemini-2.5-pro"
	}
	if m.Fast == "" {
		m.Fast = "gemini-2.5-flash"
	}
	return m
}

func callModel(ctx context.Context, client llm.Client, m *metrics.Metrics, role string, req llm.Request) (string, error) {
	start := time.Now()
	text, err := client.Generate(ctx, req)
	if m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.RecordLLMCall(role, status, time.Since(start))
	}
	return text, err
}
