package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholarpipe/indexer/internal/api"
	"github.com/scholarpipe/indexer/internal/app"
	"github.com/scholarpipe/indexer/internal/config"
	"github.com/scholarpipe/indexer/internal/logging"
)

func newIndexCmd() *cobra.Command {
	var (
		file        string
		resume      bool
		update      bool
		workers     int
		concurrency int
		issueBatch  int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Crawl catalog CSVs into their databases.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Crawl.Workers = workers
			}
			if concurrency > 0 {
				cfg.Crawl.Concurrency = concurrency
			}
			if issueBatch > 0 {
				cfg.Crawl.IssueBatch = issueBatch
			}

			log, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Server.Enabled {
				server := api.New(cfg.Server.Port, log)
				server.Start()
				defer server.Shutdown(ctx)
			}

			log.Info("starting crawl",
				zap.String("file", file),
				zap.Bool("resume", resume),
				zap.Bool("update", update),
				zap.Int("workers", cfg.Crawl.Workers))
			return app.New(cfg, log).Run(ctx, app.RunOptions{
				File:   file,
				Resume: resume,
				Update: update,
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "single catalog CSV to crawl (default: all)")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip journals a prior run completed")
	cmd.Flags().BoolVar(&update, "update", false, "incremental run: re-walk years, diff, and write a change manifest")
	cmd.Flags().IntVar(&workers, "workers", 0, "crawl worker count (overrides config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "per-journal article fetch concurrency (overrides config)")
	cmd.Flags().IntVar(&issueBatch, "issue-batch", 0, "issues fetched per commit batch (overrides config)")
	return cmd
}
