package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestClient_Generate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		want       string
		wantErr    error
		wantInErr  string
	}{
		{
			name:       "successful completion",
			body:       `{"choices":[{"message":{"role":"assistant","content":"Test response"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`,
			statusCode: http.StatusOK,
			want:       "Test response",
		},
		{
			name:       "unauthorized",
			body:       `{"error":{"code":401,"message":"No auth credentials found"}}`,
			statusCode: http.StatusUnauthorized,
			wantErr:    llm.ErrAuthFailed,
			wantInErr:  "No auth credentials found",
		},
		{
			name:       "rate limit",
			body:       `{"error":{"code":429,"message":"slow down"}}`,
			statusCode: http.StatusTooManyRequests,
			wantErr:    llm.ErrRateLimit,
		},
		{
			name:       "empty choices",
			body:       `{"choices":[]}`,
			statusCode: http.StatusOK,
			wantErr:    llm.ErrEmptyResponse,
		},
		{
			name:       "blank content",
			body:       `{"choices":[{"message":{"content":"  \n"}}]}`,
			statusCode: http.StatusOK,
			wantErr:    llm.ErrEmptyResponse,
		},
		{
			name:       "error with 200",
			body:       `{"error":{"code":502,"message":"upstream died"}}`,
			statusCode: http.StatusOK,
			wantErr:    llm.ErrRequestFailed,
			wantInErr:  "upstream died",
		},
		{
			name:       "non json gateway error",
			body:       `<html>bad gateway</html>`,
			statusCode: http.StatusBadGateway,
			wantErr:    llm.ErrRequestFailed,
			wantInErr:  "status 502: Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
					t.Errorf("Authorization = %q", got)
				}
				if r.URL.Path != "/chat/completions" {
					t.Errorf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
				io.WriteString(w, tt.body)
			})

			result, err := client.Generate(context.Background(),
				llm.NewRequest("some/model", llm.ToolConfig{}, llm.TextPart("prompt")))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Generate() error = %v, wantErr %v", err, tt.wantErr)
				}
				if tt.wantInErr != "" && !strings.Contains(err.Error(), tt.wantInErr) {
					t.Errorf("error %q should contain %q", err, tt.wantInErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Generate() unexpected error = %v", err)
			}
			if result != tt.want {
				t.Errorf("Generate() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestClient_Generate_SearchPlugin(t *testing.T) {
	for _, search := range []bool{false, true} {
		var got chatRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
		})

		_, err := client.Generate(context.Background(),
			llm.NewRequest("m", llm.SelectTools(search, true), llm.TextPart("hello"), llm.TextPart("world")))
		if err != nil {
			t.Fatalf("search=%v: unexpected error %v", search, err)
		}

		if got.Model != "m" || len(got.Messages) != 1 || got.Messages[0].Content != "hello\n\nworld" {
			t.Errorf("search=%v: unexpected request %+v", search, got)
		}
		hasWeb := len(got.Plugins) == 1 && got.Plugins[0].ID == "web" && got.Plugins[0].MaxResults == 5
		if hasWeb != search {
			t.Errorf("search=%v: plugins = %+v", search, got.Plugins)
		}
	}
}

func TestClient_Generate_RejectsFiles(t *testing.T) {
	client := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:0"}, zap.NewNop())
	_, err := client.Generate(context.Background(),
		llm.NewRequest("m", llm.ToolConfig{}, llm.FilePart(llm.FileRef{Name: "files/1"}), llm.TextPart("x")))
	if !errors.Is(err, llm.ErrFilesNotAllowed) {
		t.Errorf("expected ErrFilesNotAllowed, got %v", err)
	}
}

func TestClient_Generate_Unreachable(t *testing.T) {
	client := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())
	_, err := client.Generate(context.Background(), llm.NewRequest("m", llm.ToolConfig{}, llm.TextPart("x")))
	if !errors.Is(err, llm.ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed, got %v", err)
	}
}
