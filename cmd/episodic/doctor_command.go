package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"episodic/internal/deps"
	"episodic/internal/ledger"
	"episodic/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories and the run ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withResources(func() error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				fmt.Fprintln(out, renderSectionHeader("Checks", colorize))
				results := preflight.RunAll(cmd.Context(), cfg)
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}

				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Engine", colorize))
				for _, status := range preflight.CheckSystemDeps(cfg) {
					if !status.Available {
						continue
					}
					version, err := deps.Version(cmd.Context(), status.Path)
					if err != nil {
						fmt.Fprintln(out, renderStatusLine(status.Name, statusWarn, err.Error(), colorize))
						continue
					}
					fmt.Fprintln(out, renderStatusLine(status.Name, statusInfo, version, colorize))
				}

				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Ledger", colorize))
				store, err := ctx.openLedger()
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Run ledger", statusError, err.Error(), colorize))
				} else {
					stats, err := store.Stats(cmd.Context())
					if err != nil {
						fmt.Fprintln(out, renderStatusLine("Run ledger", statusError, err.Error(), colorize))
					} else {
						fmt.Fprintln(out, renderStatusLine("Run ledger", statusOK, store.Path(), colorize))
						fmt.Fprintln(out, renderStatusLine("Runs", statusInfo, formatStats(stats), colorize))
					}
				}

				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
}

func formatStats(stats map[ledger.Status]int) string {
	order := []ledger.Status{ledger.StatusRunning, ledger.StatusCompleted, ledger.StatusFailed, ledger.StatusReview}
	parts := make([]string, 0, len(order))
	for _, s := range order {
		parts = append(parts, fmt.Sprintf("%s %d", s, stats[s]))
	}
	return strings.Join(parts, ", ")
}
