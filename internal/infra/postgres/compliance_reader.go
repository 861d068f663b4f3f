package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"adherence-service/internal/domain"
)

// ComplianceReader reads the task tracker's daily_compliance table.
type ComplianceReader struct {
	pool *pgxpool.Pool
}

func NewComplianceReader(pool *pgxpool.Pool) *ComplianceReader {
	return &ComplianceReader{pool: pool}
}

func (r *ComplianceReader) GetCompliance(ctx context.Context, userID string, dates []time.Time) ([]domain.ComplianceRecord, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = domain.DateOf(d)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT day, completed, total FROM daily_compliance
		WHERE user_id=$1 AND day = ANY($2::date[])
		ORDER BY day`, userID, days)
	if err != nil {
		return nil, fmt.Errorf("query compliance: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ComplianceRecord, 0, len(days))
	for rows.Next() {
		var rec domain.ComplianceRecord
		if err := rows.Scan(&rec.Date, &rec.Completed, &rec.Total); err != nil {
			return nil, fmt.Errorf("scan compliance: %w", err)
		}
		rec.Date = domain.DateOf(rec.Date)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordCompliance upserts one day's counts. The task tracker owns this table;
// the write path exists for seeding and tests.
func (r *ComplianceReader) RecordCompliance(ctx context.Context, userID string, rec domain.ComplianceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_compliance (user_id, day, completed, total) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, day) DO UPDATE SET completed=EXCLUDED.completed, total=EXCLUDED.total`,
		userID, domain.DateOf(rec.Date), rec.Completed, rec.Total)
	if err != nil {
		return fmt.Errorf("record compliance: %w", err)
	}
	return nil
}
