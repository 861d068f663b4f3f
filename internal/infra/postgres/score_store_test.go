package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"adherence-service/internal/domain"
	"adherence-service/internal/logger"
)

var scoreColumns = []string{"user_id", "assessment_id", "score_date", "score", "compliance_percentage", "completed_tasks", "total_tasks"}

var testChain = domain.ChainKey{UserID: "u1", AssessmentID: "a1"}

func newMockStore(t *testing.T) (*ScoreStore, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewScoreStore(db), mock
}

func TestScoreStoreGetScoreMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "daily_scores"`).
		WillReturnRows(sqlmock.NewRows(scoreColumns))

	_, ok, err := store.GetScore(context.Background(), testChain, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreStoreGetScores(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM "daily_scores" .*assessment_id = 'a1'.*score_date BETWEEN '2026-04-01' AND '2026-04-03'`).
		WillReturnRows(sqlmock.NewRows(scoreColumns).
			AddRow("u1", "a1", day, int64(52), int64(100), int64(4), int64(4)).
			AddRow("u1", "a1", day.AddDate(0, 0, 1), int64(52), int64(50), int64(2), int64(4)))

	got, err := store.GetScores(context.Background(), testChain, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 50, got[1].CompliancePercentage)
	assert.True(t, got[1].Date.Equal(day.AddDate(0, 0, 1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreStoreUpsertInsertsAll(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO "daily_scores" .* ON CONFLICT \(user_id, assessment_id, score_date\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.UpsertScores(context.Background(), testChain, []domain.DailyScoreRecord{
		{Date: day, Score: 52, CompliancePercentage: 100, CompletedTasks: 4, TotalTasks: 4},
		{Date: day.AddDate(0, 0, 1), Score: 52, CompliancePercentage: 50, CompletedTasks: 2, TotalTasks: 4},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreStoreUpsertIgnoresIdenticalRows(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO "daily_scores"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "daily_scores" .*score_date IN \('2026-04-01'\)`).
		WillReturnRows(sqlmock.NewRows(scoreColumns).AddRow("u1", "a1", day, int64(52), int64(100), int64(4), int64(4)))

	err := store.UpsertScores(context.Background(), testChain, []domain.DailyScoreRecord{
		{Date: day, Score: 52, CompliancePercentage: 100, CompletedTasks: 4, TotalTasks: 4},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreStoreUpsertReportsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO "daily_scores"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM "daily_scores"`).
		WillReturnRows(sqlmock.NewRows(scoreColumns).AddRow("u1", "a1", day, int64(61), int64(100), int64(4), int64(4)))

	err := store.UpsertScores(context.Background(), testChain, []domain.DailyScoreRecord{
		{Date: day, Score: 52, CompliancePercentage: 100, CompletedTasks: 4, TotalTasks: 4},
		{Date: day.AddDate(0, 0, 1), Score: 52, CompliancePercentage: 50, CompletedTasks: 2, TotalTasks: 4},
	})
	assert.ErrorIs(t, err, domain.ErrScoreConflict)
	assert.Contains(t, err.Error(), "2026-04-01")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreStoreUpsertDatabaseError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "daily_scores"`).WillReturnError(errors.New("connection reset"))

	err := store.UpsertScores(context.Background(), testChain, []domain.DailyScoreRecord{
		{Date: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), Score: 52, TotalTasks: 4},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrScoreConflict))
}

func TestScoreStoreUpsertReadsBackWhenRowsAffectedFails(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO "daily_scores"`).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not report rows")))
	mock.ExpectQuery(`SELECT .* FROM "daily_scores" .*assessment_id = 'a1'.*score_date IN \('2026-04-01'\)`).
		WillReturnRows(sqlmock.NewRows(scoreColumns).AddRow("u1", "a1", day, int64(52), int64(100), int64(4), int64(4)))

	core, logs := observer.New(zap.DebugLevel)
	ctx := logger.NewContext(context.Background(), &logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	err := store.UpsertScores(ctx, testChain, []domain.DailyScoreRecord{
		{Date: day, Score: 52, CompliancePercentage: 100, CompletedTasks: 4, TotalTasks: 4},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	entries := logs.FilterMessage("daily scores rows affected unavailable").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "u1", entries[0].ContextMap()["user_id"])
}
