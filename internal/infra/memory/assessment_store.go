package memory

import (
	"context"
	"sync"

	"adherence-service/internal/domain"
)

// AssessmentStore keeps every completed assessment per user in memory.
type AssessmentStore struct {
	mu      sync.RWMutex
	results map[string][]domain.QuizResult
}

func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{results: make(map[string][]domain.QuizResult)}
}

func (s *AssessmentStore) SaveAssessment(_ context.Context, result domain.QuizResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.UserID] = append(s.results[result.UserID], result)
	return nil
}

// LatestAssessment returns the assessment with the newest completion time.
func (s *AssessmentStore) LatestAssessment(_ context.Context, userID string) (domain.QuizResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.results[userID]
	if len(results) == 0 {
		return domain.QuizResult{}, false, nil
	}
	latest := results[0]
	for _, r := range results[1:] {
		if !r.CompletedAt.Before(latest.CompletedAt) {
			latest = r
		}
	}
	return latest, true, nil
}
