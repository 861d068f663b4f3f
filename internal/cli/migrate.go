package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"adherence-service/internal/catalog"
	"adherence-service/internal/config"
	pgstore "adherence-service/internal/infra/postgres"
	pgmigrations "adherence-service/internal/infra/postgres/migrations"
	"adherence-service/internal/logger"
)

// NewMigrateCmd applies database migrations and loads the built-in question sets.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, log, err := loadConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}
			if !seed {
				return nil
			}
			return seedQuestionSets(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed-question-sets", true, "upsert the built-in question sets into postgres")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.Info("migrations applied", "group", group.String())
	return nil
}

func seedQuestionSets(ctx context.Context, cfg config.Config) error {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	store := pgstore.NewQuestionSetLoader(pool)
	for _, category := range catalog.Categories() {
		set, err := catalog.Builtin(category)
		if err != nil {
			return err
		}
		if err := store.SaveQuestionSet(ctx, set); err != nil {
			return err
		}
		logger.FromContext(ctx).Info("question set seeded", "category", category, "questions", len(set.Questions))
	}
	return nil
}
