package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/railops/dispatchd/app/plugins"
	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/core/kpi"
	"github.com/railops/dispatchd/infra/metrics"
	"github.com/railops/dispatchd/jobs/kpibackfill"
)

var backfillSince time.Duration

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay audited plan commits into the configured KPI sinks",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().DurationVar(&backfillSince, "since", 24*time.Hour, "how far back to replay")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := plugins.NewAuditStore(cfg.Audit.Backend, map[string]any{"path": cfg.Audit.Path})
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var sink kpi.Sink = kpi.NopSink{}
	if cfg.Metrics.Influx.Enabled {
		ic := cfg.Metrics.Influx
		sink = metrics.NewInfluxSinkWithFallback(ic.URL, ic.Token, ic.Org, ic.Bucket)
	}

	end := time.Now()
	n, err := kpibackfill.Run(ctx, store, sink, end.Add(-backfillSince), end)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d plan commits\n", n)
	return nil
}
