package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"adherence-service/internal/domain"
)

// NewScoreCmd computes a progressive score once and prints it as JSON.
func NewScoreCmd(configPath *string) *cobra.Command {
	var (
		userID  string
		date    string
		history bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute a user's progressive score for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			target := domain.DateOf(time.Now().UTC())
			if date != "" {
				parsed, err := domain.ParseDate(date)
				if err != nil {
					return err
				}
				target = parsed
			}

			cfg, ctx, log, err := loadConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			var out any
			if history {
				out, err = svc.progress.History(ctx, userID, target)
			} else {
				out, err = svc.progress.ProgressiveScore(ctx, userID, target)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&date, "date", "", "target date YYYY-MM-DD (default today, UTC)")
	cmd.Flags().BoolVar(&history, "history", false, "print every day from the program start")
	return cmd
}
