package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/yycdirectory/sync-cli/internal/feed"
	"github.com/yycdirectory/sync-cli/internal/metrics"
	"github.com/yycdirectory/sync-cli/internal/model"
	"github.com/yycdirectory/sync-cli/internal/store"
	syncpkg "github.com/yycdirectory/sync-cli/internal/sync"
)

var (
	syncMode     string
	syncDaysBack int
	syncLimit    int
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a licence sync against the store",
	Long: `Run a sync of business licence records from the open-data feed.

Modes:
  recent  records issued within the last --days-back days (default)
  full    paginated crawl of the entire corpus
  test    a single bounded page, for smoke-testing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "sync: open store")
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "sync: migrate")
		}

		client := feed.New(feed.Config{
			BaseURL:   cfg.Feed.BaseURL,
			PageSize:  cfg.Feed.PageSize,
			PageDelay: time.Duration(cfg.Feed.PageDelayMS) * time.Millisecond,
			Timeout:   time.Duration(cfg.Feed.TimeoutSecs) * time.Second,
		})

		runner := syncpkg.NewRunner(client, st, metrics.NewRegistry(), cfg.Sync)
		report := runner.Run(ctx, model.SyncRequest{
			Mode:     model.SyncMode(syncMode),
			DaysBack: syncDaysBack,
			Limit:    syncLimit,
			DryRun:   syncDryRun,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "sync: encode report")
		}

		if !report.Success {
			return eris.New("sync failed")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncMode, "mode", "recent", "fetch mode: recent, full, test")
	syncCmd.Flags().IntVar(&syncDaysBack, "days-back", 0, "recent-window size in days (default from config)")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "page cap for test mode (default from config)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "fetch and normalize without touching the store")
	rootCmd.AddCommand(syncCmd)
}
