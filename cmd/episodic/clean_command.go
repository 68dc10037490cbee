package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"episodic/internal/ledger"
	"episodic/internal/logging"
	"episodic/internal/staging"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAgeHours int
	var pruneDays int
	var list bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staging directories, old logs and old run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withResources(func() error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				if list {
					runs, err := staging.List(cfg.Paths.StagingDir)
					if err != nil {
						return err
					}
					if len(runs) == 0 {
						fmt.Fprintln(out, "Staging area is empty")
						return nil
					}
					now := time.Now()
					rows := make([][]string, 0, len(runs))
					for _, r := range runs {
						rows = append(rows, []string{r.ID, formatElapsed(r.Age(now)), fmt.Sprintf("%d", r.Files), formatBytes(r.Bytes)})
					}
					fmt.Fprintln(out, renderTable([]string{"Run", "Age", "Files", "Size"}, rows,
						[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}, colorize))
					return nil
				}

				if !cmd.Flags().Changed("max-age-hours") {
					maxAgeHours = cfg.Paths.StagingMaxAgeHours
				}
				maxAge := time.Duration(maxAgeHours) * time.Hour

				store, err := ctx.openLedger()
				if err != nil {
					return err
				}
				interrupted, err := store.MarkInterrupted(cmd.Context(), time.Now().Add(-maxAge))
				if err != nil {
					return err
				}
				keep, err := activeRuns(cmd.Context(), store)
				if err != nil {
					return err
				}

				result := staging.Sweep(cmd.Context(), staging.SweepOptions{
					Root:   cfg.Paths.StagingDir,
					MaxAge: maxAge,
					Keep:   keep,
					Logger: logger,
				})
				logs := logging.PruneOldLogs(logger, cfg.Paths.LogDir, "*.log*", cfg.Logging.RetentionDays)

				var pruned int64
				if pruneDays > 0 {
					if pruned, err = store.PruneBefore(cmd.Context(), time.Now().AddDate(0, 0, -pruneDays)); err != nil {
						return err
					}
				}

				fmt.Fprintln(out, renderStatusLine("Interrupted runs", statusInfo, fmt.Sprintf("%d marked failed", interrupted), colorize))
				fmt.Fprintln(out, renderStatusLine("Staging", statusInfo, fmt.Sprintf("%d directories removed, %s reclaimed", len(result.Removed), formatBytes(result.Reclaimed)), colorize))
				fmt.Fprintln(out, renderStatusLine("Logs", statusInfo, fmt.Sprintf("%d files removed", len(logs.Removed)), colorize))
				if pruneDays > 0 {
					fmt.Fprintln(out, renderStatusLine("History", statusInfo, fmt.Sprintf("%d runs pruned", pruned), colorize))
				}
				for _, f := range result.Failed {
					fmt.Fprintln(out, renderStatusLine("Staging", statusWarn, fmt.Sprintf("%s: %v", f.Path, f.Err), colorize))
				}
				if len(result.Failed) > 0 || logs.Failed > 0 {
					return fmt.Errorf("cleanup incomplete: %d staging and %d log failures", len(result.Failed), logs.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 0, "Remove staging directories older than this (default paths.staging_max_age_hours)")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Also delete finished runs older than this many days from history")
	cmd.Flags().BoolVar(&list, "list", false, "List staging directories instead of cleaning")
	return cmd
}

// activeRuns names the staging directories owned by runs still in progress.
func activeRuns(ctx context.Context, store *ledger.Store) (map[string]struct{}, error) {
	runs, err := store.ListRuns(ctx, 1000, ledger.StatusRunning)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(runs))
	for _, r := range runs {
		keep[r.ID] = struct{}{}
	}
	return keep, nil
}
