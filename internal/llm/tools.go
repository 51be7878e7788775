package llm

import "github.com/nilltadios/gemini-qa-webapp/internal/textmetrics"

// ToolConfig - набор серверных инструментов модели для одного вызова.
// Значение сравнимо, одинаковые входы дают равные конфиги.
type ToolConfig struct {
	Search        bool
	CodeExecution bool
}

// SelectTools - чистое отображение двух флагов в конфиг (4 варианта).
func SelectTools(search, codeExecution bool) ToolConfig {
	return ToolConfig{Search: search, CodeExecution: codeExecution}
}

// GradingTools решает, нужен ли грейдеру code execution: только если в ответе
// есть цифры и выполнение кода вообще разрешено. Настройку пользователя
// (включил ли он code execution для генерации) не смотрит.
func GradingTools(search, codeBlocked bool, response string) ToolConfig {
	return SelectTools(search, !codeBlocked && textmetrics.ContainsNumerals(response))
}

// Index - номер варианта 0..3, для таблиц нативных конфигов у провайдеров
func (t ToolConfig) Index() int {
	i := 0
	if t.Search {
		i |= 1
	}
	if t.CodeExecution {
		i |= 2
	}
	return i
}

func (t ToolConfig) String() string {
	switch t.Index() {
	case 1:
		return "search"
	case 2:
		return "code"
	case 3:
		return "search+code"
	}
	return "none"
}

// AllToolConfigs - все четыре варианта в порядке Index
func AllToolConfigs() [4]ToolConfig {
	var out [4]ToolConfig
	for i := range out {
		out[i] = SelectTools(i&1 != 0, i&2 != 0)
	}
	return out
}
