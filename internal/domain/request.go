package domain

import "strings"

const (
	MaxPromptLength       = 100000
	MinRefinements        = 1
	MaxRefinements        = 5
	DefaultMaxRefinements = 3
)

// QARequest - параметры одного запроса к ассистенту.
type QARequest struct {
	UserID           int64
	Prompt           string
	Attachments      []Attachment
	Capabilities     ToolCapabilities
	UseQualityAgents bool
	MaxRefinements   int // 0 - взять значение по умолчанию
	History          []Turn
}

func (r *QARequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(r.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	if r.MaxRefinements != 0 && (r.MaxRefinements < MinRefinements || r.MaxRefinements > MaxRefinements) {
		return ErrInvalidRefinements
	}
	for _, a := range r.Attachments {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *QARequest) Sanitize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
}

type QAStatus string

const (
	StatusQualityDisabled QAStatus = "quality_disabled"
	StatusPassed          QAStatus = "passed"
	StatusCriteriaFailed  QAStatus = "criteria_failed"
	StatusGraderError     QAStatus = "grader_error"
	StatusRefinerFailed   QAStatus = "refiner_failed"
	StatusBoundReached    QAStatus = "bound_reached"
	StatusCanceled        QAStatus = "canceled"
)

func (s QAStatus) String() string { return string(s) }

// QAResult - итог запроса. Text уже содержит уведомление о непройденных
// критериях, если цикл уперся в лимит.
type QAResult struct {
	Text               string
	Status             QAStatus
	Iterations         int
	GraderCalls        int
	RefinerCalls       int
	LastFailedCriteria string
	Warnings           []string
	Words              int
	Sentences          int
	Characters         int
}
