// Package textmetrics считает простую статистику текста ответа.
package textmetrics

import "strings"

type Metrics struct {
	Words      int
	Sentences  int
	Characters int
}

// Count возвращает число слов, предложений и символов.
// Предложения считаются грубо: каждая '.', '!' или '?' - отдельное предложение,
// "..." даст три. Из символов убираются только пробелы и переводы строк.
func Count(text string) Metrics {
	if strings.TrimSpace(text) == "" {
		return Metrics{}
	}

	sentences := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")

	stripped := strings.NewReplacer(" ", "", "\n", "").Replace(text)

	return Metrics{
		Words:      len(strings.Fields(text)),
		Sentences:  sentences,
		Characters: len([]rune(stripped)),
	}
}

// ContainsNumerals - есть ли в тексте хотя бы одна цифра 0-9
func ContainsNumerals(text string) bool {
	return strings.ContainsAny(text, "0123456789")
}
