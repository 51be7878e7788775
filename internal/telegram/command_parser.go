package telegram

import (
	"errors"
	"strconv"
	"strings"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

var (
	ErrUsage         = errors.New("invalid command arguments")
	ErrUnknownToggle = errors.New("unknown setting")
)

// SettingsChange - разобранная команда /settings <key> <value>
type SettingsChange struct {
	Key   string
	On    bool
	Value int
}

// ParseSettingsArgs разбирает "search on", "code off", "agents on", "max 4".
// Пустые аргументы - просто показать настройки, возвращается нулевой Key.
func ParseSettingsArgs(args string) (SettingsChange, error) {
	fields := strings.Fields(strings.ToLower(args))
	if len(fields) == 0 {
		return SettingsChange{}, nil
	}
	if len(fields) != 2 {
		return SettingsChange{}, ErrUsage
	}

	key, value := fields[0], fields[1]
	switch key {
	case "search", "code", "agents":
		on, ok := parseToggle(value)
		if !ok {
			return SettingsChange{}, ErrUsage
		}
		return SettingsChange{Key: key, On: on}, nil
	case "max":
		n, err := strconv.Atoi(value)
		if err != nil || n < domain.MinRefinements || n > domain.MaxRefinements {
			return SettingsChange{}, domain.ErrInvalidRefinements
		}
		return SettingsChange{Key: key, Value: n}, nil
	}
	return SettingsChange{}, ErrUnknownToggle
}

func (c SettingsChange) Apply(s *Settings) {
	switch c.Key {
	case "search":
		s.Search = c.On
	case "code":
		s.CodeExecution = c.On
	case "agents":
		s.UseQualityAgents = c.On
	case "max":
		s.MaxRefinements = c.Value
	}
}

func parseToggle(v string) (bool, bool) {
	switch v {
	case "on", "true", "1", "yes", "вкл":
		return true, true
	case "off", "false", "0", "no", "выкл":
		return false, true
	}
	return false, false
}

// ParseEditArgs: "/edit 2 новый текст" -> 2, "новый текст"
func ParseEditArgs(args string) (int, string, error) {
	args = strings.TrimSpace(args)
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 {
		return 0, "", ErrUsage
	}
	n, err := ParseIndexArg(parts[0])
	if err != nil {
		return 0, "", err
	}
	text := strings.TrimSpace(parts[1])
	if text == "" {
		return 0, "", ErrUsage
	}
	return n, text, nil
}

// ParseIndexArg - номер элемента списка, начиная с 1
func ParseIndexArg(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return 0, ErrUsage
	}
	return n, nil
}
