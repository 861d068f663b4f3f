package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adherence-service/internal/app"
	"adherence-service/internal/domain"
	"adherence-service/internal/infra/memory"
)

var (
	day0      = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	seedChain = domain.ChainKey{UserID: "u1", AssessmentID: "seed"}
)

type progressFixture struct {
	assessments *memory.AssessmentStore
	compliance  *memory.ComplianceStore
	scores      *memory.ScoreStore
}

func newProgressFixture(t *testing.T, seed int) *progressFixture {
	t.Helper()
	f := &progressFixture{
		assessments: memory.NewAssessmentStore(),
		compliance:  memory.NewComplianceStore(),
		scores:      memory.NewScoreStore(),
	}
	require.NoError(t, f.assessments.SaveAssessment(context.Background(), domain.QuizResult{
		ID:          "seed",
		UserID:      "u1",
		TotalScore:  seed,
		CompletedAt: day0.Add(15 * time.Hour),
	}))
	return f
}

func (f *progressFixture) service(opts app.ProgressOptions) *app.ProgressService {
	return app.NewProgressService(f.assessments, f.compliance, f.scores, opts)
}

func TestProgressiveScoreScenario(t *testing.T) {
	f := newProgressFixture(t, 50)
	f.compliance.Record("u1", day0, 4, 4)
	f.compliance.Record("u1", day0.AddDate(0, 0, 1), 2, 4)
	f.compliance.Record("u1", day0.AddDate(0, 0, 2), 0, 4)

	rec, err := f.service(app.ProgressOptions{}).ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 48, rec.Score)
	assert.Equal(t, 0, rec.CompliancePercentage)
	assert.Equal(t, 0, rec.CompletedTasks)
	assert.Equal(t, 4, rec.TotalTasks)
	assert.False(t, rec.Initial)

	history, err := f.service(app.ProgressOptions{}).History(context.Background(), "u1", day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	scores := make([]int, 0, len(history))
	for _, h := range history {
		scores = append(scores, h.Score)
	}
	assert.Equal(t, []int{52, 52, 50, 48}, scores)
	assert.Equal(t, 4, f.scores.Len("u1"), "every walked day is cached")
}

func TestProgressiveScoreDeterministicAcrossCacheStates(t *testing.T) {
	build := func() *progressFixture {
		f := newProgressFixture(t, 63)
		pattern := [][2]int{{4, 4}, {3, 4}, {1, 4}, {0, 4}, {2, 4}, {4, 4}, {4, 4}, {1, 3}, {3, 3}}
		for i, p := range pattern {
			f.compliance.Record("u1", day0.AddDate(0, 0, i), p[0], p[1])
		}
		return f
	}
	target := day0.AddDate(0, 0, 12)
	ctx := context.Background()

	cold := build()
	want, err := cold.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)

	warm := build()
	svc := warm.service(app.ProgressOptions{})
	for _, offset := range []int{2, 7, 5} {
		_, err := svc.ProgressiveScore(ctx, "u1", day0.AddDate(0, 0, offset))
		require.NoError(t, err)
	}
	got, err := svc.ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	again, err := svc.ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestProgressiveScoreClamps(t *testing.T) {
	ctx := context.Background()

	high := newProgressFixture(t, 97)
	for i := 0; i < 20; i++ {
		high.compliance.Record("u1", day0.AddDate(0, 0, i), 4, 4)
	}
	history, err := high.service(app.ProgressOptions{}).History(ctx, "u1", day0.AddDate(0, 0, 19))
	require.NoError(t, err)
	for _, h := range history {
		assert.LessOrEqual(t, h.Score, 100)
	}
	assert.Equal(t, 100, history[len(history)-1].Score)

	low := newProgressFixture(t, 3)
	rec, err := low.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", day0.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Score)
}

func TestProgressiveScoreIsPathDependent(t *testing.T) {
	ctx := context.Background()
	target := day0.AddDate(0, 0, 3)

	a := newProgressFixture(t, 50)
	b := newProgressFixture(t, 50)
	for i := 0; i <= 3; i++ {
		a.compliance.Record("u1", day0.AddDate(0, 0, i), 4, 4)
		b.compliance.Record("u1", day0.AddDate(0, 0, i), 4, 4)
	}
	b.compliance.Record("u1", day0.AddDate(0, 0, 1), 0, 4)

	ra, err := a.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)
	rb, err := b.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)

	assert.Equal(t, ra.CompliancePercentage, rb.CompliancePercentage, "same compliance on the target day")
	assert.NotEqual(t, ra.Score, rb.Score)
}

func TestMissingComplianceMatchesZeroCompletion(t *testing.T) {
	ctx := context.Background()
	missing := newProgressFixture(t, 50)
	explicit := newProgressFixture(t, 50)
	explicit.compliance.Record("u1", day0, 0, 4)

	rm, err := missing.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", day0)
	require.NoError(t, err)
	re, err := explicit.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", day0)
	require.NoError(t, err)

	assert.Equal(t, re, rm)
	assert.Equal(t, 48, rm.Score)
}

func TestPreProgramDateReturnsSeedWithoutCaching(t *testing.T) {
	f := newProgressFixture(t, 57)
	rec, err := f.service(app.ProgressOptions{}).ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, -1))
	require.NoError(t, err)

	assert.True(t, rec.Initial)
	assert.Equal(t, 57, rec.Score)
	assert.Equal(t, 0, rec.CompliancePercentage)
	assert.Equal(t, 0, f.scores.Len("u1"))
}

func TestProgressiveScoreWithoutAssessment(t *testing.T) {
	svc := app.NewProgressService(memory.NewAssessmentStore(), memory.NewComplianceStore(), memory.NewScoreStore(), app.ProgressOptions{})
	_, err := svc.ProgressiveScore(context.Background(), "nobody", day0)
	assert.ErrorIs(t, err, domain.ErrNoSeedAssessment)
}

func TestProgressiveScoreRangeCap(t *testing.T) {
	f := newProgressFixture(t, 50)
	svc := f.service(app.ProgressOptions{MaxWalkDays: 30})

	_, err := svc.ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, 29))
	require.NoError(t, err)

	_, err = svc.ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, 30))
	assert.ErrorIs(t, err, domain.ErrRangeTooLarge)
}

func TestCachedDaysAreAuthoritative(t *testing.T) {
	f := newProgressFixture(t, 50)
	require.NoError(t, f.scores.UpsertScores(context.Background(), seedChain, []domain.DailyScoreRecord{
		{Date: day0, Score: 70, CompliancePercentage: 100, CompletedTasks: 4, TotalTasks: 4},
	}))
	f.compliance.Record("u1", day0.AddDate(0, 0, 1), 4, 4)

	rec, err := f.service(app.ProgressOptions{}).ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 72, rec.Score)
}

func TestCachedTargetSkipsCompliance(t *testing.T) {
	f := newProgressFixture(t, 50)
	reader := &countingCompliance{ComplianceReader: f.compliance}
	svc := app.NewProgressService(f.assessments, reader, f.scores, app.ProgressOptions{})
	ctx := context.Background()

	first, err := svc.ProgressiveScore(ctx, "u1", day0.AddDate(0, 0, 2))
	require.NoError(t, err)
	second, err := svc.ProgressiveScore(ctx, "u1", day0.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, reader.count())
}

func TestStoreFailureIsPersistenceUnavailable(t *testing.T) {
	f := newProgressFixture(t, 50)
	svc := app.NewProgressService(f.assessments, failingCompliance{}, f.scores, app.ProgressOptions{})

	_, err := svc.ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, domain.ErrPersistenceUnavailable)
	assert.Equal(t, 0, f.scores.Len("u1"), "no score is written without compliance history")
}

func TestConcurrentWriterDisagreementIsConflict(t *testing.T) {
	f := newProgressFixture(t, 50)
	// Another writer stored a different value after this request read the cache.
	require.NoError(t, f.scores.UpsertScores(context.Background(), seedChain, []domain.DailyScoreRecord{
		{Date: day0, Score: 99, CompliancePercentage: 100, CompletedTasks: 4, TotalTasks: 4},
	}))
	svc := app.NewProgressService(f.assessments, f.compliance, blindCache{f.scores}, app.ProgressOptions{})

	_, err := svc.ProgressiveScore(context.Background(), "u1", day0)
	assert.ErrorIs(t, err, domain.ErrScoreConflict)

	kept, _, _ := f.scores.GetScore(context.Background(), seedChain, day0)
	assert.Equal(t, 99, kept.Score)
}

func TestRetakeStartsNewChain(t *testing.T) {
	ctx := context.Background()
	target := day0.AddDate(0, 0, 5)
	retake := domain.QuizResult{
		ID:          "retake",
		UserID:      "u1",
		TotalScore:  90,
		CompletedAt: day0.AddDate(0, 0, 3).Add(9 * time.Hour),
	}

	warm := newProgressFixture(t, 20)
	before, err := warm.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)
	assert.Equal(t, 8, before.Score)
	require.NoError(t, warm.assessments.SaveAssessment(ctx, retake))
	got, err := warm.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)

	cold := newProgressFixture(t, 20)
	require.NoError(t, cold.assessments.SaveAssessment(ctx, retake))
	want, err := cold.service(app.ProgressOptions{}).ProgressiveScore(ctx, "u1", target)
	require.NoError(t, err)

	assert.Equal(t, 84, want.Score)
	assert.Equal(t, want, got)

	history, err := warm.service(app.ProgressOptions{}).History(ctx, "u1", target)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Date.Equal(day0.AddDate(0, 0, 3)))
	assert.Equal(t, 88, history[0].Score)

	old, ok, err := warm.scores.GetScore(ctx, seedChain, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8, old.Score, "the first chain is left untouched")
}

func TestCanceledCallerDoesNotAbortSharedComputation(t *testing.T) {
	f := newProgressFixture(t, 50)
	reader := &gatedCompliance{
		ComplianceReader: f.compliance,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := app.NewProgressService(f.assessments, reader, f.scores, app.ProgressOptions{})
	target := day0.AddDate(0, 0, 2)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.ProgressiveScore(ctx, "u1", target)
		errCh <- err
	}()

	<-reader.entered
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(reader.release)
	require.Eventually(t, func() bool { return f.scores.Len("u1") == 3 }, time.Second, 5*time.Millisecond)

	rec, err := svc.ProgressiveScore(context.Background(), "u1", target)
	require.NoError(t, err)
	assert.Equal(t, 44, rec.Score)
}

func TestConcurrentRequestsAgree(t *testing.T) {
	f := newProgressFixture(t, 50)
	for i := 0; i < 10; i++ {
		f.compliance.Record("u1", day0.AddDate(0, 0, i), i%5, 4)
	}
	want, err := newProgressFixtureFrom(f).service(app.ProgressOptions{}).History(context.Background(), "u1", day0.AddDate(0, 0, 9))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// separate services share only the store, like separate server instances
			svc := f.service(app.ProgressOptions{})
			offset := i % 10
			rec, err := svc.ProgressiveScore(context.Background(), "u1", day0.AddDate(0, 0, offset))
			if err != nil {
				errs <- err
				return
			}
			if rec.Score != want[offset].Score {
				errs <- errors.New("score mismatch")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent request: %v", err)
	}
}

// newProgressFixtureFrom copies seed and compliance into a fixture with an empty cache.
func newProgressFixtureFrom(f *progressFixture) *progressFixture {
	return &progressFixture{
		assessments: f.assessments,
		compliance:  f.compliance,
		scores:      memory.NewScoreStore(),
	}
}

type countingCompliance struct {
	app.ComplianceReader
	mu    sync.Mutex
	calls int
}

func (c *countingCompliance) GetCompliance(ctx context.Context, userID string, dates []time.Time) ([]domain.ComplianceRecord, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.ComplianceReader.GetCompliance(ctx, userID, dates)
}

func (c *countingCompliance) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// gatedCompliance blocks reads until release is closed and fails if its ctx ends first.
type gatedCompliance struct {
	app.ComplianceReader
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCompliance) GetCompliance(ctx context.Context, userID string, dates []time.Time) ([]domain.ComplianceRecord, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.ComplianceReader.GetCompliance(ctx, userID, dates)
}

type failingCompliance struct{}

func (failingCompliance) GetCompliance(context.Context, string, []time.Time) ([]domain.ComplianceRecord, error) {
	return nil, errors.New("connection refused")
}

// blindCache hides existing rows from reads but keeps the store's write semantics.
type blindCache struct {
	*memory.ScoreStore
}

func (blindCache) GetScore(context.Context, domain.ChainKey, time.Time) (domain.DailyScoreRecord, bool, error) {
	return domain.DailyScoreRecord{}, false, nil
}

func (blindCache) GetScores(context.Context, domain.ChainKey, time.Time, time.Time) ([]domain.DailyScoreRecord, error) {
	return nil, nil
}
