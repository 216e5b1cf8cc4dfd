package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/infra/logger"
	"github.com/railops/dispatchd/qa/scenarios"
)

var whatifCmd = &cobra.Command{
	Use:   "whatif <scenario.yaml> [scenario.yaml...]",
	Short: "Run what-if scenarios and print a KPI comparison",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWhatIf,
}

func init() {
	rootCmd.AddCommand(whatifCmd)
}

func runWhatIf(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scs := make([]*scenarios.Scenario, 0, len(args))
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return fmt.Errorf("load scenario %s: %w", path, err)
		}
		scs = append(scs, sc)
	}

	reports, cmpr, err := scenarios.RunAll(ctx, scs, cfg.Scheduler.Core(), logger.New("whatif-command"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tFEASIBLE\tCONFLICTS\tPUNCTUALITY\tMEAN DELAY\tTHROUGHPUT/H")
	for _, rep := range reports {
		r := rep.Disrupted
		fmt.Fprintf(w, "%s\t%t\t%d\t%.2f\t%s\t%.1f\n",
			rep.Scenario, rep.Feasible, len(r.Conflicts),
			r.KPI.Punctuality, r.KPI.MeanDelay.Round(time.Second), r.KPI.ThroughputPerHour)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nbest punctuality: %s\nbest mean delay: %s\nbest throughput: %s\n",
		cmpr.BestPunctuality, cmpr.BestMeanDelay, cmpr.BestThroughput)
	return nil
}
