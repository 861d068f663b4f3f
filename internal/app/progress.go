package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"adherence-service/internal/domain"
	"adherence-service/internal/logger"
	"adherence-service/internal/metrics"
	"adherence-service/internal/policy"
)

// ComplianceReader reads per-day task completion for a user. Dates without a
// record are simply absent from the result.
type ComplianceReader interface {
	GetCompliance(ctx context.Context, userID string, dates []time.Time) ([]domain.ComplianceRecord, error)
}

// ScoreCache memoizes computed daily scores. Rows are scoped to the seed
// assessment that started the chain, so a new assessment starts a new chain.
// UpsertScores must insert only missing (user, assessment, date) rows and
// report domain.ErrScoreConflict when an existing row holds a different value.
type ScoreCache interface {
	GetScore(ctx context.Context, key domain.ChainKey, date time.Time) (domain.DailyScoreRecord, bool, error)
	GetScores(ctx context.Context, key domain.ChainKey, from, to time.Time) ([]domain.DailyScoreRecord, error)
	UpsertScores(ctx context.Context, key domain.ChainKey, records []domain.DailyScoreRecord) error
}

// ProgressOptions bounds the recurrence walk.
type ProgressOptions struct {
	// MaxWalkDays caps the number of days replayed per request.
	MaxWalkDays int
	// DefaultDailyTasks is the task total assumed for days with no compliance record.
	DefaultDailyTasks int
	// ComputeTimeout bounds one shared progressive score computation.
	ComputeTimeout time.Duration
}

// ProgressService evolves a user's seed assessment score day by day.
type ProgressService struct {
	assessments AssessmentReader
	compliance  ComplianceReader
	scores      ScoreCache
	opts        ProgressOptions
	sf          singleflight.Group
}

func NewProgressService(assessments AssessmentReader, compliance ComplianceReader, scores ScoreCache, opts ProgressOptions) *ProgressService {
	if opts.MaxWalkDays <= 0 {
		opts.MaxWalkDays = 366
	}
	if opts.DefaultDailyTasks <= 0 {
		opts.DefaultDailyTasks = 4
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = 30 * time.Second
	}
	return &ProgressService{
		assessments: assessments,
		compliance:  compliance,
		scores:      scores,
		opts:        opts,
	}
}

// ProgressiveScore returns the daily score record for target. Concurrent
// requests for the same user and date share one computation, which runs
// detached from any single caller's cancellation.
func (s *ProgressService) ProgressiveScore(ctx context.Context, userID string, target time.Time) (domain.DailyScoreRecord, error) {
	target = domain.DateOf(target)
	ch := s.sf.DoChan(userID+"|"+domain.DateKey(target), func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ComputeTimeout)
		defer cancel()
		return s.progressiveScore(shared, userID, target)
	})

	select {
	case <-ctx.Done():
		metrics.RecordScoreRequest("canceled")
		return domain.DailyScoreRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			metrics.RecordScoreRequest(outcomeOf(res.Err))
			return domain.DailyScoreRecord{}, res.Err
		}
		return res.Val.(domain.DailyScoreRecord), nil
	}
}

// History returns every daily record from the program start through target.
func (s *ProgressService) History(ctx context.Context, userID string, target time.Time) ([]domain.DailyScoreRecord, error) {
	target = domain.DateOf(target)
	seed, err := s.seed(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.Before(seed.start) {
		return []domain.DailyScoreRecord{initialRecord(target, seed.score)}, nil
	}
	if err := s.checkRange(seed.start, target); err != nil {
		return nil, err
	}
	return s.walk(ctx, seed, target)
}

func (s *ProgressService) progressiveScore(ctx context.Context, userID string, target time.Time) (domain.DailyScoreRecord, error) {
	seed, err := s.seed(ctx, userID)
	if err != nil {
		return domain.DailyScoreRecord{}, err
	}
	if target.Before(seed.start) {
		metrics.RecordScoreRequest("initial")
		return initialRecord(target, seed.score), nil
	}
	if err := s.checkRange(seed.start, target); err != nil {
		return domain.DailyScoreRecord{}, err
	}

	cached, ok, err := s.scores.GetScore(ctx, seed.key, target)
	if err != nil {
		return domain.DailyScoreRecord{}, fmt.Errorf("%w: read score cache: %w", domain.ErrPersistenceUnavailable, err)
	}
	if ok {
		metrics.RecordDays(1, 0)
		metrics.RecordScoreRequest("cached")
		return cached, nil
	}

	chain, err := s.walk(ctx, seed, target)
	if err != nil {
		return domain.DailyScoreRecord{}, err
	}
	metrics.RecordScoreRequest("computed")
	return chain[len(chain)-1], nil
}

// walk replays the recurrence from start through target. Cached days supply the
// running value; missing days are computed and written back in one batch.
func (s *ProgressService) walk(ctx context.Context, seed seedAssessment, target time.Time) ([]domain.DailyScoreRecord, error) {
	userID, start := seed.key.UserID, seed.start
	log := logger.FromContext(ctx).With("component", "progress", "user_id", userID, "assessment_id", seed.key.AssessmentID)
	dates := domain.DateRange(start, target)

	var (
		cached     []domain.DailyScoreRecord
		compliance []domain.ComplianceRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cached, err = s.scores.GetScores(gctx, seed.key, start, target)
		if err != nil {
			return fmt.Errorf("read score cache: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		compliance, err = s.compliance.GetCompliance(gctx, userID, dates)
		if err != nil {
			return fmt.Errorf("read compliance: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistenceUnavailable, err)
	}

	cachedByDate := make(map[string]domain.DailyScoreRecord, len(cached))
	for _, rec := range cached {
		cachedByDate[domain.DateKey(rec.Date)] = rec
	}
	complianceByDate := make(map[string]domain.ComplianceRecord, len(compliance))
	for _, rec := range compliance {
		complianceByDate[domain.DateKey(rec.Date)] = rec
	}

	running := seed.score
	chain := make([]domain.DailyScoreRecord, 0, len(dates))
	pending := make([]domain.DailyScoreRecord, 0, len(dates))
	for _, d := range dates {
		key := domain.DateKey(d)
		if rec, ok := cachedByDate[key]; ok {
			running = policy.Clamp(rec.Score, policy.MinScore, policy.MaxScore)
			chain = append(chain, rec)
			continue
		}

		// No record means the user completed nothing that day.
		completed, total := 0, s.opts.DefaultDailyTasks
		if rec, ok := complianceByDate[key]; ok {
			completed, total = rec.Completed, rec.Total
		}

		score, pct := policy.Step(running, completed, total)
		running = score
		rec := domain.DailyScoreRecord{
			Date:                 d,
			Score:                score,
			CompliancePercentage: pct,
			CompletedTasks:       completed,
			TotalTasks:           total,
		}
		chain = append(chain, rec)
		pending = append(pending, rec)
	}

	if len(pending) > 0 {
		if err := s.scores.UpsertScores(ctx, seed.key, pending); err != nil {
			if errors.Is(err, domain.ErrScoreConflict) {
				metrics.RecordConflict()
				log.Error("daily score conflict", "error", err)
				return nil, err
			}
			return nil, fmt.Errorf("%w: write score cache: %w", domain.ErrPersistenceUnavailable, err)
		}
	}

	metrics.RecordDays(len(chain)-len(pending), len(pending))
	log.Debug("progressive score walked",
		"start", domain.DateKey(start), "target", domain.DateKey(target),
		"days", len(chain), "computed", len(pending))
	return chain, nil
}

// seedAssessment is the assessment a chain of daily scores grows from.
type seedAssessment struct {
	key   domain.ChainKey
	score int
	start time.Time
}

func (s *ProgressService) seed(ctx context.Context, userID string) (seedAssessment, error) {
	result, ok, err := s.assessments.LatestAssessment(ctx, userID)
	if err != nil {
		return seedAssessment{}, fmt.Errorf("%w: load assessment: %w", domain.ErrPersistenceUnavailable, err)
	}
	if !ok {
		return seedAssessment{}, domain.ErrNoSeedAssessment
	}
	return seedAssessment{
		key:   domain.ChainKey{UserID: userID, AssessmentID: result.ID},
		score: result.TotalScore,
		start: domain.DateOf(result.CompletedAt.UTC()),
	}, nil
}

func (s *ProgressService) checkRange(start, target time.Time) error {
	if days := domain.DaysBetween(start, target) + 1; days > s.opts.MaxWalkDays {
		return fmt.Errorf("%w: %d days from %s exceeds limit of %d",
			domain.ErrRangeTooLarge, days, domain.DateKey(start), s.opts.MaxWalkDays)
	}
	return nil
}

func initialRecord(date time.Time, seed int) domain.DailyScoreRecord {
	return domain.DailyScoreRecord{Date: date, Score: seed, Initial: true}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoSeedAssessment):
		return "no_seed"
	case errors.Is(err, domain.ErrRangeTooLarge):
		return "range_too_large"
	case errors.Is(err, domain.ErrScoreConflict):
		return "conflict"
	default:
		return "error"
	}
}
