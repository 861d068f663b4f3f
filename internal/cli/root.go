package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"adherence-service/internal/config"
	"adherence-service/internal/logger"
)

var (
	port       string
	configPath string
	logMode    string
)

// Execute runs the CLI.
func Execute() error {
	config.LoadDotEnv()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "adherence-service",
		Short:        "Assessment scoring and progressive daily adherence scores",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "development or production (overrides log.mode)")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewScoreCmd(&configPath))
	return cmd
}

// loadConfig reads config and returns a context carrying the configured logger.
func loadConfig(ctx context.Context, path string) (config.Config, context.Context, *logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, ctx, nil, err
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return cfg, ctx, nil, err
	}
	return cfg, logger.NewContext(ctx, log), log, nil
}
