package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitforge/fitforge/internal/config"
	"github.com/fitforge/fitforge/internal/semcache"
)

// NewCacheCmd creates the similarity cache command with stats and purge subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the similarity cache",
		Long:  "Show aggregate cache statistics or remove every cached plan record from Redis.",
	}
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

func openCacheStore() (*semcache.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	store := semcache.NewStore(client, zap.NewNop(), cfg.Tuning.CacheTTL)
	cleanup := func() { _ = client.Close() }
	return store, cleanup, nil
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show similarity cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openCacheStore()
			if err != nil {
				return err
			}
			defer cleanup()
			stats, err := store.Stats(context.Background())
			if err != nil {
				return fmt.Errorf("get cache stats: %w", err)
			}
			fmt.Println("Similarity cache:")
			fmt.Printf("  Records:    %d\n", stats.Records)
			fmt.Printf("  Total hits: %d\n", stats.TotalHits)
			return nil
		},
	}
}

func newCachePurgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove all cached plan records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			store, cleanup, err := openCacheStore()
			if err != nil {
				return err
			}
			defer cleanup()
			removed, err := store.Purge(context.Background())
			if err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}
			fmt.Printf("Removed %d cached plan records.\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge")
	return cmd
}
