package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

const (
	maxMessageLen    = 4096 // лимит телеграма
	maxProgressLines = 15
	separator        = "\n\n━━━━━━━━━━━━━━━━━━━━━\n"
)

func FormatAnswer(res *domain.QAResult, filesUsed int) string {
	var sb strings.Builder
	sb.WriteString(html.EscapeString(res.Text))

	sb.WriteString(separator)
	sb.WriteString(fmt.Sprintf("📝 %d слов · 📄 %d предложений · 🔤 %d символов",
		res.Words, res.Sentences, res.Characters))
	if filesUsed > 0 {
		sb.WriteString(fmt.Sprintf(" · 📁 %d", filesUsed))
	}

	if status := statusLine(res); status != "" {
		sb.WriteString("\n<i>")
		sb.WriteString(status)
		sb.WriteString("</i>")
	}
	return sb.String()
}

func statusLine(res *domain.QAResult) string {
	switch res.Status {
	case domain.StatusPassed:
		return fmt.Sprintf("✅ Проверка качества пройдена (итераций: %d)", res.Iterations)
	case domain.StatusBoundReached:
		return fmt.Sprintf("⚠️ Достигнут лимит улучшений (%d)", res.Iterations)
	case domain.StatusCriteriaFailed:
		return "⚠️ Не удалось составить критерии, ответ без проверки"
	case domain.StatusGraderError:
		return "⚠️ Проверка качества прервана из-за ошибки"
	case domain.StatusRefinerFailed:
		return "⚠️ Улучшение ответа не удалось, показан последний вариант"
	case domain.StatusCanceled:
		return "⏹ Обработка прервана"
	}
	return ""
}

func FormatSettings(s Settings, codeBlocked bool) string {
	var sb strings.Builder
	sb.WriteString("<b>⚙️ Настройки:</b>\n\n")
	sb.WriteString(fmt.Sprintf("🌐 Поиск: %s\n", onOff(s.Search)))
	if codeBlocked {
		sb.WriteString("💻 Выполнение кода: недоступно\n")
	} else {
		sb.WriteString(fmt.Sprintf("💻 Выполнение кода: %s\n", onOff(s.CodeExecution)))
	}
	sb.WriteString(fmt.Sprintf("🤖 Агенты качества: %s\n", onOff(s.UseQualityAgents)))
	sb.WriteString(fmt.Sprintf("🔁 Максимум итераций: %d\n", s.MaxRefinements))
	sb.WriteString("\nИзменить: /settings search|code|agents on|off, /settings max 1-5")
	return sb.String()
}

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

func FormatAttachments(atts []domain.Attachment) string {
	if len(atts) == 0 {
		return "Файлов нет. Отправьте документ, чтобы добавить его в контекст."
	}

	var sb strings.Builder
	sb.WriteString("<b>📚 Загруженные файлы:</b>\n\n")

	total := 0
	for i, a := range atts {
		name := html.EscapeString(truncate(a.Filename, 60))
		if a.IsRemote() {
			sb.WriteString(fmt.Sprintf("%d. 📎 %s (%s)\n", i+1, name, html.EscapeString(a.Handle.MIMEType)))
			continue
		}
		total += a.Size()
		sb.WriteString(fmt.Sprintf("%d. 📄 %s (%d символов)\n", i+1, name, a.Size()))
	}

	sb.WriteString(fmt.Sprintf("\n📊 Всего: %d файлов, %d символов", len(atts), total))
	return sb.String()
}

// FormatUserTurns - пронумерованные вопросы для /edit
func FormatUserTurns(turns []domain.Turn) string {
	if len(turns) == 0 {
		return "История пуста."
	}
	var sb strings.Builder
	sb.WriteString("<b>Ваши вопросы:</b>\n\n")
	for i, t := range turns {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, html.EscapeString(truncate(t.Content, 80))))
	}
	sb.WriteString("\nИзменить вопрос: /edit N новый текст")
	return sb.String()
}

func FormatStats(st *domain.RunStats) string {
	if st == nil || st.Total == 0 {
		return "Пока нет проверенных ответов."
	}
	return fmt.Sprintf("<b>📊 Статистика:</b>\n\nПрогонов: %d\nПрошли проверку: %d\nУперлись в лимит: %d\nСреднее число итераций: %.1f",
		st.Total, st.Passed, st.BoundReached, st.AvgIters)
}

// FormatProgress - последние строки лога для статусного сообщения
func FormatProgress(lines []string) string {
	if len(lines) > maxProgressLines {
		lines = lines[len(lines)-maxProgressLines:]
	}
	text := "🔄 Обработка...\n\n" + html.EscapeString(strings.Join(lines, "\n"))
	if len(text) > maxMessageLen {
		text = text[len(text)-maxMessageLen:]
		for len(text) > 0 && !utf8.RuneStart(text[0]) {
			text = text[1:]
		}
	}
	return text
}

func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var messages []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			messages = append(messages, text)
			break
		}

		splitPoint := findSafeSplitPoint(text, maxLen)
		if splitPoint <= 0 || splitPoint > len(text) {
			splitPoint = safeCut(text, maxLen)
		}

		messages = append(messages, text[:splitPoint])
		text = text[splitPoint:]
	}

	return messages
}

func findSafeSplitPoint(text string, maxLen int) int {
	// ищем пробел или перевод строки, не ломая HTML-теги
	for i := maxLen - 1; i > maxLen/2; i-- {
		if i >= len(text) {
			continue
		}
		if isInsideHTMLTag(text, i) {
			continue
		}

		if text[i] == '\n' || text[i] == ' ' {
			return i + 1
		}
	}

	// внутри тега - ищем конец
	if maxLen < len(text) && isInsideHTMLTag(text, maxLen) {
		for i := maxLen; i < len(text); i++ {
			if text[i] == '>' {
				for j := i + 1; j < len(text) && j < i+50; j++ {
					if text[j] == '\n' || text[j] == ' ' {
						return j + 1
					}
				}
				return i + 1
			}
		}
	}

	for i := maxLen - 1; i > 0; i-- {
		if text[i] == ' ' || text[i] == '\n' {
			return i + 1
		}
	}

	return safeCut(text, maxLen)
}

// maxEntityLen - с запасом к самой длинной сущности html.EscapeString (&#34;)
const maxEntityLen = 6

// safeCut сдвигает разрез назад, чтобы не резать символ utf-8 и сущность вида &amp;
func safeCut(text string, n int) int {
	if n >= len(text) {
		return len(text)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	for i := cut - 1; i >= 0 && i > cut-maxEntityLen; i-- {
		if text[i] == ';' {
			break
		}
		if text[i] == '&' {
			if i > 0 {
				cut = i
			}
			break
		}
	}
	if cut == 0 {
		// один символ длиннее лимита не бывает, но не зацикливаемся
		return n
	}
	return cut
}

func isInsideHTMLTag(text string, pos int) bool {
	if pos >= len(text) || pos < 0 {
		return false
	}
	for i := pos; i >= 0; i-- {
		if text[i] == '>' {
			return false
		}
		if text[i] == '<' {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
