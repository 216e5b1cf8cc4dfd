package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/railops/dispatchd/config"
	"github.com/railops/dispatchd/core/network"
	"github.com/railops/dispatchd/core/schedule"
	"github.com/railops/dispatchd/infra/logger"
	"github.com/railops/dispatchd/pkg/export"
)

var (
	planFormat string
	planOutput string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Solve the configured roster once and print the timetable",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planFormat, "format", "text", "output format: text, json or csv")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "write the plan to a file instead of stdout")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	net, err := network.Load(cfg.Network.TopologyPath)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}
	trains, err := network.LoadRoster(cfg.Network.RosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	horizon, err := cfg.Dispatcher.Horizon(time.Now())
	if err != nil {
		return err
	}

	sched := schedule.New(net, cfg.Scheduler.Core(), logger.New("plan-command"))
	res, err := sched.Plan(ctx, schedule.Request{Trains: trains, Horizon: horizon, Seed: cfg.Dispatcher.Seed})
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	out := cmd.OutOrStdout()
	if planOutput != "" {
		f, err := os.Create(planOutput)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	switch planFormat {
	case "json":
		return export.WriteJSON(out, res.Plan)
	case "csv":
		return export.WriteCSV(out, res.Plan)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", planFormat)
	}

	fmt.Fprintf(out, "feasible=%t objective=%.1f confidence=%.2f elapsed=%s\n",
		res.Feasible, res.Objective, res.Confidence, res.Elapsed.Round(time.Millisecond))
	ids := make([]string, 0, len(res.Plan.Reservations))
	for id := range res.Plan.Reservations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "%s:\n", id)
		for _, r := range res.Plan.Reservations[id] {
			fmt.Fprintf(out, "  %-12s %s -> %s\n", r.Resource,
				r.Entry.Format("15:04"), r.Exit.Format("15:04"))
		}
	}
	return nil
}
