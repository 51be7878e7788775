package prompt

import (
	"strings"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

const (
	historyHeader     = "=== CONVERSATION HISTORY ==="
	attachmentsHeader = "=== ATTACHED FILE CONTEXTS ==="
	promptLabel       = "=== USER PROMPT ==="
)

// Composed - собранный запрос. Один и тот же Composed уходит в первичную
// генерацию, в генератор критериев и в рефайнер.
type Composed struct {
	Text  string
	Files []llm.FileRef
}

// Parts - текст первым, затем загруженные файлы
func (c Composed) Parts() []llm.Part {
	parts := make([]llm.Part, 0, 1+len(c.Files))
	parts = append(parts, llm.TextPart(c.Text))
	for _, f := range c.Files {
		parts = append(parts, llm.FilePart(f))
	}
	return parts
}

// Compose собирает текст запроса: история, потом вложения, потом сам вопрос.
// Удалённые вложения в текст не попадают, они идут отдельными частями.
func Compose(userPrompt string, history []domain.Turn, attachments []domain.Attachment) Composed {
	var sb strings.Builder
	sb.WriteString(HistoryBlock(history))

	var files []llm.FileRef
	inlined := 0
	for _, a := range attachments {
		if a.IsRemote() {
			files = append(files, llm.FileRef{
				Name:     a.Handle.Name,
				URI:      a.Handle.URI,
				MIMEType: a.Handle.MIMEType,
			})
			continue
		}
		if inlined == 0 {
			sb.WriteString("\n\n" + attachmentsHeader + "\n\n")
		}
		inlined++
		sb.WriteString("--- File: ")
		sb.WriteString(a.Filename)
		sb.WriteString(" ---\n")
		sb.WriteString(a.Text)
		sb.WriteString("\n\n")
	}
	if inlined > 0 {
		sb.WriteString(promptLabel + "\n\n")
	}
	sb.WriteString(userPrompt)

	return Composed{
		Text:  strings.TrimLeft(sb.String(), "\n"),
		Files: files,
	}
}

// HistoryBlock рендерит историю как "ROLE: content". Пустая история - пустая строка.
func HistoryBlock(history []domain.Turn) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n" + historyHeader + "\n")
	for _, t := range history {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(t.Role.String()))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
