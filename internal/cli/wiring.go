package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"adherence-service/internal/app"
	"adherence-service/internal/catalog"
	"adherence-service/internal/config"
	"adherence-service/internal/infra/memory"
	pgstore "adherence-service/internal/infra/postgres"
	redisstore "adherence-service/internal/infra/redis"
	"adherence-service/internal/logger"
)

// services holds the wired application layer and the connections behind it.
type services struct {
	assessments *app.AssessmentService
	progress    *app.ProgressService

	pool  *pgxpool.Pool
	db    *bun.DB
	redis *redis.Client
}

func (s *services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// Ping checks every configured backing store.
func (s *services) Ping(ctx context.Context) error {
	var errs []error
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	log := logger.FromContext(ctx).With("component", "wiring")
	s := &services{}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
		s.db = openBun(cfg.Postgres.URL)
	}
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var loader memory.QuestionSetLoader = catalog.NewLoader()
	if cfg.QuestionSets.Source == config.QuestionSourcePostgres {
		if s.pool == nil {
			s.Close()
			return nil, fmt.Errorf("question_sets.source=postgres requires postgres.url")
		}
		loader = pgstore.NewQuestionSetLoader(s.pool)
	}
	questionTTL := config.TTLDuration(cfg.QuestionSets.TTL, 10*time.Minute)
	var questionSets app.QuestionSetRepository
	if s.redis != nil {
		questionSets = redisstore.NewQuestionSetRepository(s.redis, loader, questionTTL)
	} else {
		questionSets = memory.NewQuestionSetRepository(loader, questionTTL)
	}

	var (
		assessments app.AssessmentRepository
		compliance  app.ComplianceReader
	)
	if s.pool != nil {
		assessments = pgstore.NewAssessmentStore(s.pool)
		compliance = pgstore.NewComplianceReader(s.pool)
	} else {
		log.Warn("postgres not configured, assessments and compliance are kept in memory")
		assessments = memory.NewAssessmentStore()
		compliance = memory.NewComplianceStore()
	}

	var scores app.ScoreCache
	switch cfg.Engine.ScoreCache {
	case config.ScoreCachePostgres:
		if s.db == nil {
			s.Close()
			return nil, fmt.Errorf("engine.score_cache=postgres requires postgres.url")
		}
		scores = pgstore.NewScoreStore(s.db)
	case config.ScoreCacheRedis:
		if s.redis == nil {
			s.Close()
			return nil, fmt.Errorf("engine.score_cache=redis requires redis.addr")
		}
		scores = redisstore.NewScoreCache(s.redis)
	case config.ScoreCacheMemory:
		scores = memory.NewScoreStore()
	default:
		s.Close()
		return nil, fmt.Errorf("unknown engine.score_cache %q", cfg.Engine.ScoreCache)
	}
	log.Info("services wired",
		"question_sets", cfg.QuestionSets.Source,
		"score_cache", cfg.Engine.ScoreCache,
		"redis", s.redis != nil,
		"postgres", s.pool != nil)

	s.assessments = app.NewAssessmentService(questionSets, assessments)
	s.progress = app.NewProgressService(assessments, compliance, scores, app.ProgressOptions{
		MaxWalkDays:       cfg.Engine.MaxWalkDays,
		DefaultDailyTasks: cfg.Engine.DefaultDailyTasks,
	})
	return s, nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}
