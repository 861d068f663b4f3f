package memory

import (
	"context"
	"sync"
	"time"

	"adherence-service/internal/domain"
)

// ComplianceStore is an in-memory implementation of app.ComplianceReader.
type ComplianceStore struct {
	mu      sync.RWMutex
	records map[string]map[string]domain.ComplianceRecord
}

func NewComplianceStore() *ComplianceStore {
	return &ComplianceStore{
		records: make(map[string]map[string]domain.ComplianceRecord),
	}
}

// Record stores a day's completion counts, replacing any earlier value.
func (s *ComplianceStore) Record(userID string, date time.Time, completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDate, ok := s.records[userID]
	if !ok {
		byDate = make(map[string]domain.ComplianceRecord)
		s.records[userID] = byDate
	}
	date = domain.DateOf(date)
	byDate[domain.DateKey(date)] = domain.ComplianceRecord{Date: date, Completed: completed, Total: total}
}

func (s *ComplianceStore) GetCompliance(_ context.Context, userID string, dates []time.Time) ([]domain.ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ComplianceRecord, 0, len(dates))
	for _, d := range dates {
		if rec, ok := s.records[userID][domain.DateKey(d)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
