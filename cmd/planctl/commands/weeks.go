package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitforge/fitforge/internal/config"
	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/queue"
	"github.com/fitforge/fitforge/internal/workers"
)

// NewWeeksCmd creates the weeks command with the requeue-stale subcommand.
func NewWeeksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weeks",
		Short: "Manage week generation state",
		Long:  "Recover weeks stuck in the generating state after a worker crash.",
	}
	cmd.AddCommand(newWeeksRequeueStaleCmd())
	return cmd
}

func newWeeksRequeueStaleCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "requeue-stale",
		Short: "Release stale generating claims and requeue the weeks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if maxAge <= 0 {
				maxAge = cfg.Tuning.StaleClaimAge
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer func() { _ = jobQueue.Close() }()

			ctx := context.Background()
			statusRepo := database.NewWeekStatusRepository(db)
			scheduler := workers.NewScheduler(jobQueue, cfg.Tuning.InterWeekDelay, zap.NewNop())

			stale, err := statusRepo.ReleaseStale(ctx, maxAge)
			if err != nil {
				return fmt.Errorf("release stale weeks: %w", err)
			}
			if len(stale) == 0 {
				fmt.Println("No stale weeks found.")
				return nil
			}
			for _, w := range stale {
				if err := scheduler.RequeueWeek(ctx, w.UserID, w.WeekNumber); err != nil {
					return fmt.Errorf("requeue week %d for user %s: %w", w.WeekNumber, w.UserID, err)
				}
				fmt.Printf("Requeued week %d for user %s\n", w.WeekNumber, w.UserID)
			}
			fmt.Printf("Requeued %d stale weeks.\n", len(stale))
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Age after which a generating claim is considered stale (default from tuning)")
	return cmd
}
