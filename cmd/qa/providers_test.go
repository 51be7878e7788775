package main

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/config"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		wantFiles bool
		wantErr   error
	}{
		{name: "mock", provider: config.ProviderMock, wantFiles: true},
		{name: "openrouter", provider: config.ProviderOpenRouter},
		{name: "anthropic", provider: config.ProviderAnthropic},
		{name: "unknown", provider: "gigachat", wantErr: config.ErrInvalidProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.LLM.Provider = tt.provider

			p, err := newProvider(context.Background(), cfg, zap.NewNop())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.client == nil {
				t.Error("client is nil")
			}
			if (p.files != nil) != tt.wantFiles {
				t.Errorf("files = %v, want present = %v", p.files, tt.wantFiles)
			}
		})
	}
}

func TestOfflineClient(t *testing.T) {
	c := offlineClient()

	reply, err := c.Generate(context.Background(), llm.NewRequest("m", llm.ToolConfig{},
		llm.TextPart("Grade this response. Reply ONLY 'pass' or 'no'.")))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "GRADE: pass\nFAILED_CRITERIA: None" {
		t.Errorf("grade reply = %q", reply)
	}

	reply, _ = c.Generate(context.Background(), llm.NewRequest("m", llm.ToolConfig{}, llm.TextPart("hello")))
	if reply != "This is a mock response." {
		t.Errorf("answer reply = %q", reply)
	}
}
