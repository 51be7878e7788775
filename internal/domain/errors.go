package domain

import "errors"

var (
	ErrEmptyPrompt         = errors.New("empty prompt")
	ErrPromptTooLong       = errors.New("prompt too long")
	ErrInvalidRefinements  = errors.New("max refinements must be between 1 and 5")
	ErrInvalidTolerance    = errors.New("word count tolerance must be between 0 and 1")
	ErrInvalidGradeMode    = errors.New("invalid grade mode")
	ErrEmptyAttachment     = errors.New("attachment has neither text nor handle")
	ErrUnsupportedFile     = errors.New("unsupported file type")
	ErrDuplicateAttachment = errors.New("attachment already exists")
	ErrAttachmentLimit     = errors.New("attachment limit reached")
)

var (
	ErrTurnNotFound      = errors.New("conversation turn not found")
	ErrForkAssistantTurn = errors.New("only user turns can be edited")
)

var (
	// ErrGenerationFailed - первичная генерация не удалась, ответа нет вообще
	ErrGenerationFailed = errors.New("initial generation failed")
	ErrCriteriaFailed   = errors.New("criteria generation failed")
	ErrRefinementFailed = errors.New("refinement failed")
	ErrEmptyResponse    = errors.New("model returned empty response")
)

var (
	ErrRunNotFound = errors.New("quality run not found")
)
