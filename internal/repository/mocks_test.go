package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

func TestMockRunRepository_SaveAndGet(t *testing.T) {
	repo := NewMockRunRepository()
	ctx := context.Background()

	run := &domain.QualityRun{UserID: 1, Status: domain.StatusPassed, Iterations: 1}
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if run.ID == "" {
		t.Fatal("Save() did not assign an id")
	}
	if run.CreatedAt.IsZero() {
		t.Error("Save() did not set CreatedAt")
	}

	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.StatusPassed {
		t.Errorf("Get().Status = %v", got.Status)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestMockRunRepository_ListByUser(t *testing.T) {
	repo := NewMockRunRepository()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		repo.Save(ctx, &domain.QualityRun{UserID: 7, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	repo.Save(ctx, &domain.QualityRun{UserID: 8})

	runs, err := repo.ListByUser(ctx, 7, 2)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if !runs[0].CreatedAt.After(runs[1].CreatedAt) {
		t.Error("runs should be sorted newest first")
	}
}

func TestMockRunRepository_StatsByUser(t *testing.T) {
	tests := []struct {
		name string
		runs []domain.QualityRun
		want domain.RunStats
	}{
		{
			name: "no runs",
			want: domain.RunStats{},
		},
		{
			name: "mixed",
			runs: []domain.QualityRun{
				{UserID: 1, Status: domain.StatusPassed, Iterations: 1},
				{UserID: 1, Status: domain.StatusBoundReached, Iterations: 3},
				{UserID: 1, Status: domain.StatusGraderError, Iterations: 2},
				{UserID: 2, Status: domain.StatusPassed, Iterations: 5},
			},
			want: domain.RunStats{Total: 3, Passed: 1, BoundReached: 1, AvgIters: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockRunRepository()
			for i := range tt.runs {
				repo.Save(context.Background(), &tt.runs[i])
			}

			got, err := repo.StatsByUser(context.Background(), 1)
			if err != nil {
				t.Fatalf("StatsByUser() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("StatsByUser() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
