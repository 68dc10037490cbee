package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"episodic/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs or show one run's stages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withResources(func() error {
				store, err := ctx.openLedger()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				if len(args) == 1 {
					run, err := store.GetRun(cmd.Context(), args[0])
					if err != nil {
						if errors.Is(err, ledger.ErrNotFound) {
							return fmt.Errorf("no run matches %q", args[0])
						}
						return err
					}
					if asJSON {
						return writeJSON(cmd, runView(*run))
					}
					fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Status)
					fmt.Fprintf(out, "  input:   %s\n", run.Input)
					if run.Output != "" {
						fmt.Fprintf(out, "  output:  %s\n", run.Output)
					}
					fmt.Fprintf(out, "  mode:    %s\n", run.Mode)
					fmt.Fprintf(out, "  started: %s\n", run.StartedAt.Local().Format(time.DateTime))
					if d := run.Duration(); d > 0 {
						fmt.Fprintf(out, "  took:    %s\n", formatElapsed(d))
					}
					if run.Error != "" {
						fmt.Fprintf(out, "  error:   %s\n", run.Error)
						fmt.Fprintf(out, "  hint:    %s\n", run.Hint)
					}
					fmt.Fprintln(out, renderStageTable(run.Stages, colorize))
					return nil
				}

				runs, err := store.ListRuns(cmd.Context(), limit, ledger.Status(status))
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]runJSON, 0, len(runs))
					for _, r := range runs {
						views = append(views, runView(r))
					}
					return writeJSON(cmd, views)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						shortID(r.ID),
						r.StartedAt.Local().Format(time.DateTime),
						string(r.Status),
						formatElapsed(r.Duration()),
						filepath.Base(r.Input),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Started", "Status", "Took", "Input"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					colorize,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().StringVar(&status, "status", "", "Only list runs with this status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type runJSON struct {
	ID         string      `json:"id"`
	Input      string      `json:"input"`
	Output     string      `json:"output,omitempty"`
	Mode       string      `json:"mode"`
	Status     string      `json:"status"`
	Error      string      `json:"error,omitempty"`
	Hint       string      `json:"hint,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Stages     []stageJSON `json:"stages,omitempty"`
}

func runView(r ledger.Run) runJSON {
	return runJSON{
		ID:         r.ID,
		Input:      r.Input,
		Output:     r.Output,
		Mode:       r.Mode,
		Status:     string(r.Status),
		Error:      r.Error,
		Hint:       r.Hint,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Stages:     stagesView(r.Stages),
	}
}
