package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adherence-service/internal/domain"
)

func TestQuestionSetRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
			"hormone_health": sampleQuestionSet(),
		}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)

	if _, err := repo.GetQuestionSet(context.Background(), "hormone_health"); err != nil {
		t.Fatalf("get question set: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	if _, err := repo.GetQuestionSet(context.Background(), "hormone_health"); err != nil {
		t.Fatalf("get question set 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}
}

func TestQuestionSetRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
			"hormone_health": sampleQuestionSet(),
		}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestionSet(context.Background(), "hormone_health")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestionSet(context.Background(), "hormone_health")
	if loader.count() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.count())
	}
}

func TestQuestionSetRepositoryUnknownCategory(t *testing.T) {
	repo := NewQuestionSetRepository(NewStaticQuestionSetLoader(nil), time.Minute)
	_, err := repo.GetQuestionSet(context.Background(), "missing")
	if !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected invalid category, got %v", err)
	}
}

type countingLoader struct {
	QuestionSetLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, category string) (domain.QuestionSet, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuestionSetLoader.LoadQuestionSet(ctx, category)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		Category: "hormone_health",
		MaxScore: 20,
		Questions: []domain.Question{
			{
				ID:      "energy",
				Section: domain.SectionSymptoms,
				Type:    domain.QuestionScale,
				Scale:   &domain.Scale{Min: 0, Max: 10, PointsMultiplier: 1},
			},
			{
				ID:      "sleep",
				Section: domain.SectionSleepRecovery,
				Type:    domain.QuestionSingleChoice,
				Options: []domain.Option{{ID: "short", Points: 2}, {ID: "long", Points: 10}},
			},
		},
	}
}
