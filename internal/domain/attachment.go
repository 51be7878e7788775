package domain

import "strings"

const MaxAttachmentsPerSession = 20

// FileHandle - файл, уже загруженный в сервис модели.
type FileHandle struct {
	Name     string // имя в сервисе, по нему удаляем
	URI      string
	MIMEType string
}

// Attachment - либо извлеченный текст файла, либо ссылка на загруженный файл.
type Attachment struct {
	Filename string
	Text     string
	Handle   *FileHandle
}

func InlineAttachment(filename, text string) Attachment {
	return Attachment{Filename: filename, Text: text}
}

func RemoteAttachment(filename string, h FileHandle) Attachment {
	return Attachment{Filename: filename, Handle: &h}
}

func (a Attachment) IsRemote() bool { return a.Handle != nil }

func (a Attachment) Validate() error {
	if a.Handle == nil && strings.TrimSpace(a.Text) == "" {
		return ErrEmptyAttachment
	}
	return nil
}

// Size - для инлайн вложений длина текста, для удаленных 0
func (a Attachment) Size() int {
	if a.IsRemote() {
		return 0
	}
	return len(a.Text)
}
