package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/progress"
)

const DefaultMaxBytes = 20 << 20

var ErrTooLarge = errors.New("attachment too large")

// DefaultExtensions - расширения, которые принимаем без явной настройки
var DefaultExtensions = []string{"txt", "pdf", "md", "py", "json", "csv", "m"}

// remoteExtensions не декодируем локально, а загружаем в сервис модели
var remoteExtensions = map[string]bool{
	"pdf": true,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Uploader - то, что умеет загрузить файл с диска и вернуть handle.
// service.UploadRegistry подходит.
type Uploader interface {
	Upload(ctx context.Context, path, filename string, sink progress.Sink) (domain.FileHandle, error)
}

type Config struct {
	Extensions []string
	MaxBytes   int64
	TempDir    string
}

type Loader struct {
	allowed  map[string]bool
	maxBytes int64
	tempDir  string
	uploader Uploader
	logger   *zap.Logger
}

// NewLoader - uploader может быть nil, тогда pdf и прочие удаленные файлы не принимаются.
func NewLoader(cfg Config, uploader Uploader, logger *zap.Logger) *Loader {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = normalizeExt(e)
		if e != "" {
			allowed[e] = true
		}
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Loader{
		allowed:  allowed,
		maxBytes: maxBytes,
		tempDir:  cfg.TempDir,
		uploader: uploader,
		logger:   logger,
	}
}

func (l *Loader) Supported(filename string) bool {
	return l.allowed[Ext(filename)]
}

// Extensions возвращает список разрешенных расширений в порядке DefaultExtensions,
// остальные в конце.
func (l *Loader) Extensions() []string {
	out := make([]string, 0, len(l.allowed))
	seen := make(map[string]bool, len(l.allowed))
	for _, e := range DefaultExtensions {
		if l.allowed[e] {
			out = append(out, e)
			seen[e] = true
		}
	}
	for e := range l.allowed {
		if !seen[e] {
			out = append(out, e)
		}
	}
	return out
}

func (l *Loader) MaxBytes() int64 { return l.maxBytes }

// Load превращает содержимое файла во вложение: текст декодируется,
// pdf загружается через uploader.
func (l *Loader) Load(ctx context.Context, filename string, data []byte, sink progress.Sink) (domain.Attachment, error) {
	sink = progress.Safe(sink, l.logger)
	ext := Ext(filename)
	if !l.allowed[ext] {
		return domain.Attachment{}, fmt.Errorf("%w: .%s", domain.ErrUnsupportedFile, ext)
	}
	if int64(len(data)) > l.maxBytes {
		return domain.Attachment{}, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, filename, len(data), l.maxBytes)
	}
	if len(data) == 0 {
		return domain.Attachment{}, fmt.Errorf("%w: %s", domain.ErrEmptyAttachment, filename)
	}

	if remoteExtensions[ext] {
		return l.loadRemote(ctx, filename, ext, data, sink)
	}

	text, enc := Decode(data)
	att := domain.InlineAttachment(filename, text)
	if err := att.Validate(); err != nil {
		return domain.Attachment{}, fmt.Errorf("%w: %s", err, filename)
	}

	l.logger.Debug("attachment decoded",
		zap.String("filename", filename),
		zap.String("encoding", enc),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	sink.Emit(fmt.Sprintf("📄 Loaded %s (%s)", filename, enc))
	return att, nil
}

func (l *Loader) loadRemote(ctx context.Context, filename, ext string, data []byte, sink progress.Sink) (domain.Attachment, error) {
	if l.uploader == nil {
		return domain.Attachment{}, fmt.Errorf("%w: .%s needs file upload support", domain.ErrUnsupportedFile, ext)
	}

	f, err := os.CreateTemp(l.tempDir, "qa-upload-*."+ext)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			l.logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return domain.Attachment{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return domain.Attachment{}, fmt.Errorf("close temp file: %w", err)
	}

	h, err := l.uploader.Upload(ctx, path, filename, sink)
	if err != nil {
		return domain.Attachment{}, err
	}
	return domain.RemoteAttachment(filename, h), nil
}

// Decode пробует utf-8, потом однобайтовые кодировки. latin-1 декодирует любые байты,
// поэтому cp1252 выбираем, только если встречаются байты 0x80-0x9F (в latin-1 это
// управляющие символы, в cp1252 кавычки, тире и т.п.).
func Decode(data []byte) (string, string) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}

	if hasC1(data) {
		if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			return string(out), "cp1252"
		}
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		// не должно случаться, latin-1 покрывает все байты
		return strings.ToValidUTF8(string(data), "�"), "utf-8"
	}
	return string(out), "latin-1"
}

func hasC1(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return true
		}
	}
	return false
}

// Ext - расширение без точки в нижнем регистре
func Ext(filename string) string {
	return normalizeExt(filepath.Ext(filename))
}

func normalizeExt(e string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
}
