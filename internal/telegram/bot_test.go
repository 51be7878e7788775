package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nilltadios/gemini-qa-webapp/internal/attachments"
	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
	"github.com/nilltadios/gemini-qa-webapp/internal/repository"
)

// fakeMessenger запоминает все, что бот отправил
type fakeMessenger struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	nextID  int
	fileURL string
	sendErr error
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeMessenger) GetFileDirectURL(fileID string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no file server")
	}
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeMessenger) edits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeMessenger) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeMessenger) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeMessenger) anyTextContains(substr string) bool {
	for _, t := range f.texts() {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

type fakeAssistant struct {
	mu       sync.Mutex
	requests []domain.QARequest
	emit     []string
	result   *domain.QAResult
	err      error
}

func (f *fakeAssistant) Answer(ctx context.Context, req *domain.QARequest, sink progress.Sink) (*domain.QAResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.mu.Unlock()

	for _, m := range f.emit {
		sink.Emit(m)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.QAResult{
		Text:   "answer to " + req.Prompt,
		Status: domain.StatusPassed,
		Words:  3,
	}, nil
}

func (f *fakeAssistant) calls() []domain.QARequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QARequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeAssistant) last() domain.QARequest {
	calls := f.calls()
	return calls[len(calls)-1]
}

type testBotOptions struct {
	cfg   BotConfig
	files llm.FileStore
	runs  repository.RunRepository
}

func createTestBot(t *testing.T, asst *fakeAssistant, opts testBotOptions) (*Bot, *fakeMessenger) {
	t.Helper()
	if opts.cfg.RequestsPerMinute == 0 {
		opts.cfg.RequestsPerMinute = 100
	}
	if opts.cfg.SessionTTL == 0 {
		opts.cfg.SessionTTL = time.Hour
	}
	fm := &fakeMessenger{}
	b := newBot(opts.cfg, fm, asst, opts.files, opts.runs, zap.NewNop(), nil)
	t.Cleanup(b.Shutdown)
	return b, fm
}

func TestBot_SendNilClient(t *testing.T) {
	b := &Bot{logger: zap.NewNop()}
	if err := b.Send(1, "text"); err != nil {
		t.Errorf("Send() without client error = %v", err)
	}
	if err := b.SendDocument(1, "a.txt", []byte("x")); err != nil {
		t.Errorf("SendDocument() without client error = %v", err)
	}
	b.SendTyping(1)
}

func TestBot_SendUsesHTML(t *testing.T) {
	b, fm := createTestBot(t, &fakeAssistant{}, testBotOptions{})

	if err := b.Send(42, "<b>hi</b>"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	msg, ok := fm.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", fm.sent[0])
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("ParseMode = %q, want HTML", msg.ParseMode)
	}
	if msg.ChatID != 42 {
		t.Errorf("ChatID = %d, want 42", msg.ChatID)
	}
}

func TestStatusReporter(t *testing.T) {
	b, fm := createTestBot(t, &fakeAssistant{}, testBotOptions{})

	r := b.startStatus(7)
	sink := r.Sink()
	sink.Emit("🚀 Generating initial response")
	sink.Emit("📋 Creating quality criteria")
	lines := r.Stop()

	if len(lines) != 2 {
		t.Fatalf("Stop() lines = %v, want 2", lines)
	}
	if lines[0] != "🚀 Generating initial response" {
		t.Errorf("lines[0] = %q", lines[0])
	}

	edits := fm.edits()
	if len(edits) == 0 {
		t.Fatal("status message should be edited")
	}
	if !strings.Contains(edits[len(edits)-1], "Creating quality criteria") {
		t.Errorf("last edit = %q", edits[len(edits)-1])
	}

	// после Stop сообщения теряются без паники
	sink.Emit("late")
}

func TestBot_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("file body"))
		case "/big":
			w.Write([]byte(strings.Repeat("x", 100)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b, fm := createTestBot(t, &fakeAssistant{}, testBotOptions{})
	fm.fileURL = srv.URL

	data, err := b.download(context.Background(), "ok", 1024)
	if err != nil {
		t.Fatalf("download() error = %v", err)
	}
	if string(data) != "file body" {
		t.Errorf("download() = %q", data)
	}

	if _, err := b.download(context.Background(), "big", 10); !errors.Is(err, attachments.ErrTooLarge) {
		t.Errorf("download(big) error = %v, want ErrTooLarge", err)
	}

	if _, err := b.download(context.Background(), "missing", 1024); err == nil {
		t.Error("download(missing) should fail")
	}
}

func TestRequestType(t *testing.T) {
	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want string
	}{
		{"nil", nil, "message"},
		{"document", &tgbotapi.Message{Document: &tgbotapi.Document{FileName: "a.txt"}}, "document"},
		{"command", createCommandMessage(1, "/help"), "command"},
		{"question", createTestMessage(1, "hello"), "question"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestType(tt.msg); got != tt.want {
				t.Errorf("requestType() = %q, want %q", got, tt.want)
			}
		})
	}
}
