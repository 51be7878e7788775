package domain

import "time"

// QualityRun - запись аудита одного прогона контроля качества.
// Текст ответа и история не сохраняются.
type QualityRun struct {
	ID           string
	UserID       int64
	Status       QAStatus
	Iterations   int
	GraderCalls  int
	RefinerCalls int
	Words        int
	Search       bool
	Duration     time.Duration
	CreatedAt    time.Time
}

type RunStats struct {
	Total        int
	Passed       int
	BoundReached int
	AvgIters     float64
}
