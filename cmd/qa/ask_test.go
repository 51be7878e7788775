package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/attachments"
	"github.com/nilltadios/gemini-qa-webapp/internal/config"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm/mock"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
	"github.com/nilltadios/gemini-qa-webapp/internal/service"
)

type failingAnswerer struct {
	err error
}

func (f failingAnswerer) Answer(ctx context.Context, req *domain.QARequest, sink progress.Sink) (*domain.QAResult, error) {
	return nil, f.err
}

func offlineProvider(t *testing.T) (*config.Config, provider) {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderMock
	p, err := newProvider(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newProvider() error = %v", err)
	}
	return cfg, p
}

func createTestAsker(cfg *config.Config, p provider, a answerer, stdout, stderr *bytes.Buffer) *asker {
	uploads := service.NewUploadRegistry(p.files, zap.NewNop(), nil)
	if a == nil {
		a = newAssistant(cfg, p, nil, zap.NewNop(), nil)
	}
	return &asker{
		assistant: a,
		loader: attachments.NewLoader(attachments.Config{
			Extensions: cfg.Attachments.Extensions,
			MaxBytes:   cfg.Attachments.MaxBytes,
		}, uploads, zap.NewNop()),
		uploads:     uploads,
		codeBlocked: cfg.CodeExecutionBlocked(),
		out:         stdout,
		errOut:      stderr,
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAsker_Run_Offline(t *testing.T) {
	color.NoColor = true
	cfg, p := offlineProvider(t)

	var stdout, stderr bytes.Buffer
	a := createTestAsker(cfg, p, nil, &stdout, &stderr)

	err := a.run(context.Background(), askOptions{
		Question: "What is Go?",
		Search:   true,
		Agents:   true,
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "This is a mock response.") {
		t.Errorf("stdout = %q, want mock answer", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Status: passed") {
		t.Errorf("stderr should report passed status, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "✅ Done!") {
		t.Errorf("stderr should contain progress, got %q", stderr.String())
	}
}

func TestAsker_Run_Quiet(t *testing.T) {
	color.NoColor = true
	cfg, p := offlineProvider(t)

	var stdout, stderr bytes.Buffer
	a := createTestAsker(cfg, p, nil, &stdout, &stderr)

	if err := a.run(context.Background(), askOptions{Question: "hi", Quiet: true}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if strings.Contains(stderr.String(), "🚀") {
		t.Errorf("quiet run printed progress: %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Status: quality_disabled") {
		t.Errorf("summary missing, got %q", stderr.String())
	}
}

func TestAsker_Run_WithFiles(t *testing.T) {
	color.NoColor = true
	cfg, p := offlineProvider(t)
	files := p.files.(*mock.FileStore)

	txt := writeFile(t, "notes.txt", []byte("some notes"))
	pdf := writeFile(t, "paper.pdf", []byte("%PDF-1.4 fake"))

	var stdout, stderr bytes.Buffer
	a := createTestAsker(cfg, p, nil, &stdout, &stderr)

	err := a.run(context.Background(), askOptions{
		Question: "summarize",
		Files:    []string{txt, pdf},
		Agents:   true,
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if !strings.Contains(stderr.String(), "notes.txt") {
		t.Errorf("stderr should mention text attachment, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "✅ Uploaded paper.pdf") {
		t.Errorf("stderr should report upload, got %q", stderr.String())
	}
	if a.uploads.Len() != 0 {
		t.Errorf("uploads.Len() = %d, want 0 after run", a.uploads.Len())
	}
	if files.DeletedCount() != 1 {
		t.Errorf("DeletedCount() = %d, want 1", files.DeletedCount())
	}
	// загружается временная копия, но имя в сервисе - исходное
	if len(files.DisplayNames) != 1 || files.DisplayNames[0] != "paper.pdf" {
		t.Errorf("DisplayNames = %v, want [paper.pdf]", files.DisplayNames)
	}
	if files.Uploaded[0] == pdf {
		t.Errorf("uploaded path should be a temp copy, got %q", files.Uploaded[0])
	}
}

func TestAsker_LoadFilesErrors(t *testing.T) {
	cfg, p := offlineProvider(t)
	cfg.Attachments.MaxBytes = 8

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{
			name: "missing file",
			path: filepath.Join(t.TempDir(), "nope.txt"),
		},
		{
			name:    "unsupported extension",
			path:    writeFile(t, "tool.exe", []byte("MZ")),
			wantErr: domain.ErrUnsupportedFile,
		},
		{
			name:    "too large",
			path:    writeFile(t, "big.txt", []byte("0123456789abcdef")),
			wantErr: attachments.ErrTooLarge,
		},
		{
			name:    "empty",
			path:    writeFile(t, "empty.txt", nil),
			wantErr: domain.ErrEmptyAttachment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			a := createTestAsker(cfg, p, nil, &stdout, &stderr)

			_, err := a.loadFiles(context.Background(), []string{tt.path}, progress.Nop())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), filepath.Base(tt.path)) {
				t.Errorf("error %q should name the file", err)
			}
		})
	}
}

func TestAsker_Run_AnswerError(t *testing.T) {
	color.NoColor = true
	cfg, p := offlineProvider(t)
	files := p.files.(*mock.FileStore)
	pdf := writeFile(t, "paper.pdf", []byte("%PDF-1.4 fake"))

	var stdout, stderr bytes.Buffer
	a := createTestAsker(cfg, p, failingAnswerer{err: domain.ErrGenerationFailed}, &stdout, &stderr)

	err := a.run(context.Background(), askOptions{Question: "q", Files: []string{pdf}})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("run() error = %v, want ErrGenerationFailed", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty on error, got %q", stdout.String())
	}
	if files.DeletedCount() != 1 {
		t.Errorf("uploads must be released on error, DeletedCount() = %d", files.DeletedCount())
	}
}

func TestConsoleSink(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	sink := consoleSink(&buf)

	sink.Emit("🚀 Generating")
	sink.Emit("✅ Done!")
	sink.Emit("⚠️ Check failed")

	want := "🚀 Generating\n✅ Done!\n⚠️ Check failed\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	printSummary(&buf, &domain.QAResult{
		Status:       domain.StatusBoundReached,
		Iterations:   3,
		GraderCalls:  3,
		RefinerCalls: 2,
		Warnings:     []string{"criteria not met"},
		Words:        12,
		Sentences:    2,
		Characters:   60,
	})

	out := buf.String()
	for _, want := range []string{
		"Stats: 12 words · 2 sentences · 60 characters",
		"Status: bound_reached (iterations: 3, grader: 3, refiner: 2)",
		"Warning: criteria not met",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q, got %q", want, out)
		}
	}
}
