package repository

import (
	"context"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

// RunRepository - журнал прогонов контроля качества.
// Хранит только исходы и счетчики, без текстов и истории.
type RunRepository interface {
	Save(ctx context.Context, run *domain.QualityRun) error
	Get(ctx context.Context, id string) (*domain.QualityRun, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.QualityRun, error)
	StatsByUser(ctx context.Context, userID int64) (*domain.RunStats, error)
}
