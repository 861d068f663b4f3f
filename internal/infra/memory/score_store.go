package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adherence-service/internal/domain"
)

// ScoreStore is an in-memory implementation of app.ScoreCache, one date map per chain.
type ScoreStore struct {
	mu     sync.RWMutex
	chains map[domain.ChainKey]map[string]domain.DailyScoreRecord
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		chains: make(map[domain.ChainKey]map[string]domain.DailyScoreRecord),
	}
}

func (s *ScoreStore) GetScore(_ context.Context, key domain.ChainKey, date time.Time) (domain.DailyScoreRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.chains[key][domain.DateKey(date)]
	return rec, ok, nil
}

func (s *ScoreStore) GetScores(_ context.Context, key domain.ChainKey, from, to time.Time) ([]domain.DailyScoreRecord, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DailyScoreRecord, 0)
	for _, rec := range s.chains[key] {
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// UpsertScores inserts missing days. Identical existing rows are left alone;
// differing ones are reported as domain.ErrScoreConflict and never overwritten.
func (s *ScoreStore) UpsertScores(_ context.Context, key domain.ChainKey, records []domain.DailyScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDate, ok := s.chains[key]
	if !ok {
		byDate = make(map[string]domain.DailyScoreRecord)
		s.chains[key] = byDate
	}

	var conflicts []string
	for _, rec := range records {
		rec.Date = domain.DateOf(rec.Date)
		rec.Initial = false
		date := domain.DateKey(rec.Date)
		if existing, ok := byDate[date]; ok {
			if !existing.SameValue(rec) {
				conflicts = append(conflicts, date)
			}
			continue
		}
		byDate[date] = rec
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: user %s assessment %s dates %v",
			domain.ErrScoreConflict, key.UserID, key.AssessmentID, conflicts)
	}
	return nil
}

// Len reports how many days are cached for a user across all chains.
func (s *ScoreStore) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key, byDate := range s.chains {
		if key.UserID == userID {
			n += len(byDate)
		}
	}
	return n
}
