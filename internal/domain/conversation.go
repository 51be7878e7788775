package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Conversation - история диалога в хронологическом порядке.
// Ядро ее только читает, меняет ее транспортный слой.
type Conversation struct {
	Turns []Turn
}

func (c *Conversation) Append(role Role, content string) {
	c.Turns = append(c.Turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
}

func (c *Conversation) Len() int { return len(c.Turns) }

// History возвращает копию, чтобы вызывающий не мог поменять ходы под ногами
func (c *Conversation) History() []Turn {
	if len(c.Turns) == 0 {
		return nil
	}
	out := make([]Turn, len(c.Turns))
	copy(out, c.Turns)
	return out
}

// UserTurns - индексы пользовательских ходов (для нумерации в /edit)
func (c *Conversation) UserTurns() []int {
	var idx []int
	for i, t := range c.Turns {
		if t.Role == RoleUser {
			idx = append(idx, i)
		}
	}
	return idx
}

// Fork отбрасывает все ходы после index и заменяет текст редактируемого хода.
// Редактировать можно только ход пользователя. Возвращает историю до
// отредактированного хода - с ней и надо продолжать генерацию.
func (c *Conversation) Fork(index int, content string) ([]Turn, error) {
	if index < 0 || index >= len(c.Turns) {
		return nil, ErrTurnNotFound
	}
	if c.Turns[index].Role != RoleUser {
		return nil, ErrForkAssistantTurn
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyPrompt
	}

	c.Turns = c.Turns[:index+1]
	c.Turns[index].Content = content
	c.Turns[index].Timestamp = time.Now()

	return c.History()[:index], nil
}

func (c *Conversation) Clear() {
	c.Turns = nil
}
