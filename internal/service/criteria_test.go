package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm/mock"
	"github.com/nilltadios/gemini-qa-webapp/internal/prompt"
)

func TestCriteriaService_Generate(t *testing.T) {
	client := mock.New().WithResponse("  1. Must be approximately 500 words (±10%)\n")
	s := NewCriteriaService(client, zap.NewNop(), nil, CriteriaConfig{Model: "pro", Tolerance: 0.15})

	history := []domain.Turn{{Role: domain.RoleUser, Content: "earlier question"}}
	composed := prompt.Compose("Write 500 words about Go", nil, nil)

	got, err := s.Generate(context.Background(), composed,
		domain.ToolCapabilities{Search: true, CodeExecution: true}, history)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "1. Must be approximately 500 words (±10%)" {
		t.Errorf("Generate() = %q", got)
	}

	call := client.Calls()[0]
	if call.Model != "pro" {
		t.Errorf("model = %q", call.Model)
	}
	if !call.Tools.Search || call.Tools.CodeExecution {
		t.Errorf("criteria tools = %+v, want search only", call.Tools)
	}
	text := call.Text()
	for _, want := range []string{
		"Create quality criteria for this prompt.",
		"(±15%)",
		"USER: earlier question",
		"USER PROMPT:\nWrite 500 words about Go",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("criteria prompt missing %q:\n%s", want, text)
		}
	}
}

func TestCriteriaService_Generate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		client *mock.Client
	}{
		{"call error", mock.New().WithError(errors.New("quota exceeded"))},
		{"empty reply", mock.New().WithResponse("   ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCriteriaService(tt.client, zap.NewNop(), nil, CriteriaConfig{})

			got, err := s.Generate(context.Background(), prompt.Compose("q", nil, nil), domain.ToolCapabilities{}, nil)
			if !errors.Is(err, domain.ErrCriteriaFailed) {
				t.Errorf("error = %v, want ErrCriteriaFailed", err)
			}
			if got != "" {
				t.Errorf("no criteria should be fabricated, got %q", got)
			}
			if tt.client.CallCount != 1 {
				t.Errorf("calls = %d, want exactly 1", tt.client.CallCount)
			}
		})
	}
}

func TestCriteriaService_ExactTolerance(t *testing.T) {
	client := mock.New().WithResponse("1. Must be exactly 100 words")
	s := NewCriteriaService(client, zap.NewNop(), nil, CriteriaConfig{Tolerance: 0})

	if _, err := s.Generate(context.Background(), prompt.Compose("100 words on Go", nil, nil), domain.ToolCapabilities{}, nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text := client.Calls()[0].Text(); !strings.Contains(text, "(±0%)") {
		t.Errorf("tolerance 0 should reach the prompt unchanged:\n%s", text)
	}
}
