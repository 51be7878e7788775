package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nilltadios/gemini-qa-webapp/internal/llm"
)

// Формат chat completions у OpenRouter, совместим с OpenAI

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Plugins  []webPlugin   `json:"plugins,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// webPlugin - поиск на стороне OpenRouter
type webPlugin struct {
	ID         string `json:"id"`
	MaxResults int    `json:"max_results,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// classify переводит ответ с кодом ошибки в ошибки пакета llm.
// Тело может быть не JSON (прокси, html), тогда берем текст статуса.
func classify(status int, body []byte) error {
	msg := http.StatusText(status)
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil && resp.Error.Message != "" {
		msg = resp.Error.Message
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", llm.ErrAuthFailed, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", llm.ErrRateLimit, msg)
	}
	return fmt.Errorf("%w: status %d: %s", llm.ErrRequestFailed, status, msg)
}
