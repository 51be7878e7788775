package domain

import "strings"

type GradeOutcome string

const (
	GradePass  GradeOutcome = "pass"
	GradeFail  GradeOutcome = "fail"
	GradeError GradeOutcome = "error"
)

func (o GradeOutcome) String() string { return string(o) }

// GradeVerdict - результат проверки ответа по критериям.
// GradeError значит что сам грейдер не смог дать вердикт (ошибка вызова),
// это не то же самое что fail: цикл на нем останавливается.
type GradeVerdict struct {
	Outcome        GradeOutcome
	FailedCriteria string
}

// HasFeedback - есть ли что показать пользователю. "None" от модели не считается.
func (v GradeVerdict) HasFeedback() bool {
	fc := strings.TrimSpace(v.FailedCriteria)
	return fc != "" && !strings.EqualFold(fc, "none")
}

type GradeMode string

const (
	// GradeStructured - ответ вида "GRADE: ..." / "FAILED_CRITERIA: ..."
	GradeStructured GradeMode = "structured"
	// GradeLenient - голый токен, pass если в ответе встречается "pass"
	GradeLenient GradeMode = "lenient"
)

func (m GradeMode) IsValid() bool {
	switch m {
	case GradeStructured, GradeLenient:
		return true
	}
	return false
}

// Criteria - документ с критериями качества, для цикла это просто строка
type Criteria string

func (c Criteria) String() string { return string(c) }

// RefinementState живет только внутри одного запроса.
type RefinementState struct {
	CurrentResponse    string
	Iteration          int
	LastFailedCriteria string
}
