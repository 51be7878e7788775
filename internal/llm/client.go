package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrRequestFailed   = errors.New("request failed")
	ErrEmptyResponse   = errors.New("empty response")
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrFilesNotAllowed = errors.New("provider does not accept file parts")
	ErrUploadFailed    = errors.New("file upload failed")
	ErrDeleteFailed    = errors.New("file delete failed")
)

// Client - единственный примитив, на котором строятся все вызовы агентов:
// первичная генерация, критерии, оценка и улучшение.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// FileStore - загрузка файлов в сервис модели. displayName - имя, под
// которым файл виден в сервисе (путь обычно временный).
type FileStore interface {
	Upload(ctx context.Context, path, displayName, mimeType string) (FileRef, error)
	Delete(ctx context.Context, name string) error
}

type Request struct {
	Model string
	Parts []Part
	Tools ToolConfig
}

// FileRef - файл, загруженный в сервис модели
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
}

// Part - либо текст, либо ссылка на загруженный файл
type Part struct {
	Text string
	File *FileRef
}

func TextPart(s string) Part { return Part{Text: s} }

func FilePart(f FileRef) Part { return Part{File: &f} }

func NewRequest(model string, tools ToolConfig, parts ...Part) Request {
	return Request{Model: model, Parts: parts, Tools: tools}
}

// Text склеивает текстовые части запроса
func (r Request) Text() string {
	var sb strings.Builder
	for i, p := range r.Parts {
		if p.File != nil {
			continue
		}
		if i > 0 && sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (r Request) HasFiles() bool {
	for _, p := range r.Parts {
		if p.File != nil {
			return true
		}
	}
	return false
}
