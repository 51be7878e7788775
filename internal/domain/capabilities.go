package domain

// ToolCapabilities - какие инструменты модели доступны в рамках запроса.
// CodeExecutionBlocked означает что выполнение кода запрещено совсем
// (провайдер не умеет или отключено оператором) - грейдер не включит его даже
// если в ответе есть цифры.
type ToolCapabilities struct {
	Search               bool
	CodeExecution        bool
	CodeExecutionBlocked bool
}

// Effective убирает CodeExecution если он запрещен.
func (c ToolCapabilities) Effective() ToolCapabilities {
	if c.CodeExecutionBlocked {
		c.CodeExecution = false
	}
	return c
}

func (c ToolCapabilities) Describe() string {
	c = c.Effective()
	switch {
	case c.Search && c.CodeExecution:
		return "Google Search + Code Execution"
	case c.Search:
		return "Google Search"
	case c.CodeExecution:
		return "Code Execution"
	}
	return ""
}
