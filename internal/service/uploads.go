package service

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
	"github.com/nilltadios/gemini-qa-webapp/internal/metrics"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
)

const defaultDeleteParallelism = 4

// типы для разрешенных расширений, системная таблица MIME на разных
// машинах разная
var knownMIME = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".py":   "text/x-python",
	".json": "application/json",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".m":    "text/plain",
}

// DetectMIME определяет тип по расширению, неизвестное - text/plain.
func DetectMIME(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := knownMIME[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return "text/plain"
}

// UploadRegistry хранит файлы, загруженные в сервис модели за сессию,
// и удаляет их при Release. Безопасен для конкурентного использования.
type UploadRegistry struct {
	store    llm.FileStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	parallel int

	mu      sync.Mutex
	handles []domain.FileHandle
}

func NewUploadRegistry(store llm.FileStore, logger *zap.Logger, m *metrics.Metrics) *UploadRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadRegistry{
		store:    store,
		logger:   logger,
		metrics:  m,
		parallel: defaultDeleteParallelism,
	}
}

// Upload загружает локальный файл и запоминает handle для последующей очистки.
func (r *UploadRegistry) Upload(ctx context.Context, path, filename string, sink progress.Sink) (domain.FileHandle, error) {
	sink = progress.Safe(sink, r.logger)
	if r.store == nil {
		return domain.FileHandle{}, fmt.Errorf("%w: remote files are not supported by this provider", domain.ErrUnsupportedFile)
	}

	mimeType := DetectMIME(filename)
	sink.Emit(fmt.Sprintf("📤 Uploading %s (MIME: %s)...", filename, mimeType))

	ref, err := r.store.Upload(ctx, path, filename, mimeType)
	if err != nil {
		sink.Emit(fmt.Sprintf("❌ Error uploading %s: %v", filename, err))
		r.logger.Warn("upload failed", zap.String("file", filename), zap.Error(err))
		r.recordOp("upload", "error")
		return domain.FileHandle{}, err
	}
	r.recordOp("upload", "success")

	h := domain.FileHandle{Name: ref.Name, URI: ref.URI, MIMEType: ref.MIMEType}
	if h.MIMEType == "" {
		h.MIMEType = mimeType
	}
	r.Track(h)

	sink.Emit("✅ Uploaded " + filename)
	return h, nil
}

func (r *UploadRegistry) Track(h domain.FileHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
}

func (r *UploadRegistry) Handles() []domain.FileHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FileHandle, len(r.handles))
	copy(out, r.handles)
	return out
}

func (r *UploadRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Release удаляет все загруженные файлы. Ошибки удаления собираются и
// возвращаются для информации, реестр очищается в любом случае.
// Повторный вызов ничего не делает.
func (r *UploadRegistry) Release(ctx context.Context, sink progress.Sink) []error {
	sink = progress.Safe(sink, r.logger)

	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	if len(handles) == 0 || r.store == nil {
		return nil
	}
	sink.Emit(fmt.Sprintf("🗑️ Cleaning up %d uploaded file(s)...", len(handles)))

	errs := make([]error, len(handles))
	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, h := range handles {
		g.Go(func() error {
			if err := r.store.Delete(ctx, h.Name); err != nil {
				errs[i] = fmt.Errorf("delete %s: %w", h.Name, err)
				sink.Emit(fmt.Sprintf("⚠️ Failed to delete %s: %v", h.Name, err))
				r.logger.Warn("failed to delete uploaded file", zap.String("name", h.Name), zap.Error(err))
				r.recordOp("delete", "error")
				return nil
			}
			sink.Emit("✅ Deleted " + h.Name)
			r.recordOp("delete", "success")
			return nil
		})
	}
	g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}

func (r *UploadRegistry) recordOp(op, status string) {
	if r.metrics != nil {
		r.metrics.RecordFileOp(op, status)
	}
}
