package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

type MockRunRepository struct {
	mu   sync.RWMutex
	runs map[string]domain.QualityRun

	// SaveErr - если задан, Save его возвращает
	SaveErr error
}

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{
		runs: make(map[string]domain.QualityRun),
	}
}

func (m *MockRunRepository) Save(ctx context.Context, run *domain.QualityRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *MockRunRepository) Get(ctx context.Context, id string) (*domain.QualityRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return &run, nil
}

func (m *MockRunRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.QualityRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.QualityRun
	for _, r := range m.runs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRunRepository) StatsByUser(ctx context.Context, userID int64) (*domain.RunStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &domain.RunStats{}
	iters := 0
	for _, r := range m.runs {
		if r.UserID != userID {
			continue
		}
		stats.Total++
		iters += r.Iterations
		switch r.Status {
		case domain.StatusPassed:
			stats.Passed++
		case domain.StatusBoundReached:
			stats.BoundReached++
		}
	}
	if stats.Total > 0 {
		stats.AvgIters = float64(iters) / float64(stats.Total)
	}
	return stats, nil
}

// Count - сколько записей всего, для тестов
func (m *MockRunRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

var _ RunRepository = (*MockRunRepository)(nil)
