package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"adherence-service/internal/domain"
	"adherence-service/internal/logger"
)

type dailyScoreRow struct {
	bun.BaseModel `bun:"table:daily_scores"`

	UserID               string    `bun:"user_id,pk"`
	AssessmentID         string    `bun:"assessment_id,pk"`
	ScoreDate            time.Time `bun:"score_date,pk,type:date"`
	Score                int       `bun:"score"`
	CompliancePercentage int       `bun:"compliance_percentage"`
	CompletedTasks       int       `bun:"completed_tasks"`
	TotalTasks           int       `bun:"total_tasks"`
}

func (r dailyScoreRow) record() domain.DailyScoreRecord {
	return domain.DailyScoreRecord{
		Date:                 domain.DateOf(r.ScoreDate),
		Score:                r.Score,
		CompliancePercentage: r.CompliancePercentage,
		CompletedTasks:       r.CompletedTasks,
		TotalTasks:           r.TotalTasks,
	}
}

// ScoreStore is the durable daily score cache backed by the daily_scores table.
type ScoreStore struct {
	db *bun.DB
}

func NewScoreStore(db *bun.DB) *ScoreStore {
	return &ScoreStore{db: db}
}

func (s *ScoreStore) GetScore(ctx context.Context, key domain.ChainKey, date time.Time) (domain.DailyScoreRecord, bool, error) {
	var row dailyScoreRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", key.UserID).
		Where("assessment_id = ?", key.AssessmentID).
		Where("score_date = ?", domain.DateKey(date)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyScoreRecord{}, false, nil
	}
	if err != nil {
		return domain.DailyScoreRecord{}, false, fmt.Errorf("select daily score: %w", err)
	}
	return row.record(), true, nil
}

func (s *ScoreStore) GetScores(ctx context.Context, key domain.ChainKey, from, to time.Time) ([]domain.DailyScoreRecord, error) {
	var rows []dailyScoreRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", key.UserID).
		Where("assessment_id = ?", key.AssessmentID).
		Where("score_date BETWEEN ? AND ?", domain.DateKey(from), domain.DateKey(to)).
		Order("score_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select daily scores: %w", err)
	}
	out := make([]domain.DailyScoreRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// UpsertScores inserts with ON CONFLICT DO NOTHING. When some rows were
// skipped, the existing rows are read back and any differing value is
// reported as domain.ErrScoreConflict.
func (s *ScoreStore) UpsertScores(ctx context.Context, chain domain.ChainKey, records []domain.DailyScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]dailyScoreRow, len(records))
	for i, rec := range records {
		rows[i] = dailyScoreRow{
			UserID:               chain.UserID,
			AssessmentID:         chain.AssessmentID,
			ScoreDate:            domain.DateOf(rec.Date),
			Score:                rec.Score,
			CompliancePercentage: rec.CompliancePercentage,
			CompletedTasks:       rec.CompletedTasks,
			TotalTasks:           rec.TotalTasks,
		}
	}

	res, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (user_id, assessment_id, score_date) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert daily scores: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		logger.FromContext(ctx).Debug("daily scores rows affected unavailable", "user_id", chain.UserID, "error", err)
	} else if inserted == int64(len(rows)) {
		return nil
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = domain.DateKey(row.ScoreDate)
	}
	var existing []dailyScoreRow
	err = s.db.NewSelect().
		Model(&existing).
		Where("user_id = ?", chain.UserID).
		Where("assessment_id = ?", chain.AssessmentID).
		Where("score_date IN (?)", bun.In(keys)).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("select existing daily scores: %w", err)
	}

	stored := make(map[string]domain.DailyScoreRecord, len(existing))
	for _, row := range existing {
		stored[domain.DateKey(row.ScoreDate)] = row.record()
	}
	var conflicts []string
	for _, row := range rows {
		key := domain.DateKey(row.ScoreDate)
		if prev, ok := stored[key]; ok && !prev.SameValue(row.record()) {
			conflicts = append(conflicts, key)
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: user %s assessment %s dates %v",
			domain.ErrScoreConflict, chain.UserID, chain.AssessmentID, conflicts)
	}
	return nil
}
