package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"adherence-service/internal/domain"
)

// AssessmentStore persists completed assessments in quiz_results.
type AssessmentStore struct {
	pool *pgxpool.Pool
}

func NewAssessmentStore(pool *pgxpool.Pool) *AssessmentStore {
	return &AssessmentStore{pool: pool}
}

func (s *AssessmentStore) SaveAssessment(ctx context.Context, result domain.QuizResult) error {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	responses, err := json.Marshal(result.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_results (id, user_id, category, total_score, tier, breakdown, responses, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8)`,
		result.ID, result.UserID, result.Category, result.TotalScore, string(result.Tier),
		string(breakdown), string(responses), result.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (s *AssessmentStore) LatestAssessment(ctx context.Context, userID string) (domain.QuizResult, bool, error) {
	var (
		result    domain.QuizResult
		tier      string
		breakdown []byte
		responses []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id, category, total_score, tier, breakdown, responses, completed_at
		FROM quiz_results WHERE user_id=$1
		ORDER BY completed_at DESC LIMIT 1`, userID).
		Scan(&result.ID, &result.UserID, &result.Category, &result.TotalScore, &tier,
			&breakdown, &responses, &result.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizResult{}, false, nil
	}
	if err != nil {
		return domain.QuizResult{}, false, fmt.Errorf("query latest quiz result: %w", err)
	}
	result.Tier = domain.Tier(tier)
	if err := json.Unmarshal(breakdown, &result.Breakdown); err != nil {
		return domain.QuizResult{}, false, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(responses, &result.Responses); err != nil {
		return domain.QuizResult{}, false, fmt.Errorf("unmarshal responses: %w", err)
	}
	result.CompletedAt = result.CompletedAt.UTC()
	return result, true, nil
}
