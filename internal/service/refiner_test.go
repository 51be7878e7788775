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

func TestRefinerService_Refine(t *testing.T) {
	tests := []struct {
		name       string
		failed     string
		wantFailed bool
	}{
		{"with feedback", "Must be 500 words, got 320", true},
		{"none feedback", "None", false},
		{"empty feedback", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mock.New().WithResponse("  improved text  ")
			s := NewRefinerService(client, zap.NewNop(), nil, "pro")

			got, err := s.Refine(context.Background(),
				prompt.Compose("Write 500 words", nil, nil),
				"Must be approximately 500 words",
				"one two three",
				domain.ToolCapabilities{Search: true, CodeExecution: true},
				1, nil, tt.failed)
			if err != nil {
				t.Fatalf("Refine() error = %v", err)
			}
			if got != "  improved text  " {
				t.Errorf("Refine() = %q", got)
			}

			call := client.Calls()[0]
			if call.Tools.CodeExecution {
				t.Error("refiner should not use code execution")
			}
			text := call.Text()
			for _, want := range []string{
				"Improve this response to meet ALL criteria.",
				"Current word count: 3 words",
				"ORIGINAL PROMPT:\nWrite 500 words",
				"RESPONSE TO IMPROVE:\none two three",
			} {
				if !strings.Contains(text, want) {
					t.Errorf("refiner prompt missing %q", want)
				}
			}
			if !strings.HasSuffix(text, "Provide only the improved response.") {
				t.Error("refiner prompt should end with the output instruction")
			}
			if has := strings.Contains(text, "FAILED CRITERIA FROM LAST REVIEW:"); has != tt.wantFailed {
				t.Errorf("failed criteria section present = %v, want %v", has, tt.wantFailed)
			}
		})
	}
}

func TestRefinerService_Refine_Failures(t *testing.T) {
	tests := []struct {
		name   string
		client *mock.Client
	}{
		{"call error", mock.New().WithError(errors.New("boom"))},
		{"empty reply", mock.New().WithResponse("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRefinerService(tt.client, zap.NewNop(), nil, "")

			_, err := s.Refine(context.Background(), prompt.Compose("q", nil, nil), "c", "current",
				domain.ToolCapabilities{}, 2, nil, "")
			if !errors.Is(err, domain.ErrRefinementFailed) {
				t.Errorf("error = %v, want ErrRefinementFailed", err)
			}
		})
	}
}
