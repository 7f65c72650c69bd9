package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/north-cloud/huv-matcher/internal/batch"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/runner"
	"github.com/north-cloud/huv-matcher/internal/statistics"
)

const defaultUnmatchedLimit = 500

var errNoIDs = errors.New("no source ids to match")

func newBatchCommand() *cobra.Command {
	var (
		ids       []string
		unmatched bool
		limit     int
		mode      string
		asJSON    bool
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Match many source items and print statistics",
		Long: `Match many source items. Ids come from --ids, from the stored results
without a target (--unmatched), or default to every known source item.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			switch {
			case len(ids) > 0:
			case unmatched:
				if app.Results == nil {
					return errors.New("--unmatched needs a database reference driver")
				}
				if ids, err = app.Results.ListUnmatchedSourceIDs(ctx, limit); err != nil {
					return err
				}
			default:
				if ids, err = app.ListSourceIDs(ctx); err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				return errNoIDs
			}

			out := cmd.OutOrStdout()
			req := runner.Request{IDs: ids, Mode: domain.Mode(mode)}
			if progress {
				errOut := cmd.ErrOrStderr()
				req.OnProgress = func(p batch.Progress) {
					fmt.Fprintf(errOut, "\r%d/%d", p.Done, p.Total)
					if p.Done == p.Total {
						fmt.Fprintln(errOut)
					}
				}
			}

			run, runErr := app.Runner.Run(ctx, req)
			if run != nil {
				if asJSON {
					if err := writeJSON(out, run); err != nil {
						return err
					}
				} else {
					renderStats(out, run)
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma-separated source ids")
	cmd.Flags().BoolVar(&unmatched, "unmatched", false, "re-run items whose stored result has no target")
	cmd.Flags().IntVar(&limit, "limit", defaultUnmatchedLimit, "max items for --unmatched")
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeHeuristic), "heuristic or ai")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run as JSON")
	cmd.Flags().BoolVar(&progress, "progress", false, "report progress on stderr")
	cmd.MarkFlagsMutuallyExclusive("ids", "unmatched")
	return cmd
}

// renderStats prints the run summary, the confidence histogram and the
// winning strategy counts.
func renderStats(w io.Writer, run *domain.BatchRun) {
	s := run.Stats

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleLight)
	summary.SetTitle(fmt.Sprintf("Batch %s (%s)", run.ID, run.Mode))
	summary.AppendRows([]table.Row{
		{"Total", s.Total},
		{"Matched", s.Matched},
		{"Unmatched", s.Unmatched},
		{"Failed", s.Failed},
		{"AI accepted", s.AIAccepted},
		{"AI fallback", s.AIFallback},
		{"Average confidence", fmt.Sprintf("%.2f", s.AverageConfidence)},
		{"Match rate", fmt.Sprintf("%.1f%%", statistics.MatchRate(s)*100)},
		{"Elapsed", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	summary.Render()

	buckets := table.NewWriter()
	buckets.SetOutputMirror(w)
	buckets.SetStyle(table.StyleLight)
	buckets.AppendHeader(table.Row{"Confidence", "Count"})
	for _, b := range s.Buckets {
		buckets.AppendRow(table.Row{b.Label, b.Count})
	}
	buckets.Render()

	if len(s.ByStrategy) > 0 {
		names := make([]string, 0, len(s.ByStrategy))
		for name := range s.ByStrategy {
			names = append(names, name)
		}
		sort.Strings(names)

		strategies := table.NewWriter()
		strategies.SetOutputMirror(w)
		strategies.SetStyle(table.StyleLight)
		strategies.AppendHeader(table.Row{"Strategy", "Matched"})
		for _, name := range names {
			strategies.AppendRow(table.Row{name, s.ByStrategy[name]})
		}
		strategies.Render()
	}

	if len(s.UnmatchedIDs) > 0 {
		fmt.Fprintf(w, "Unmatched: %v\n", s.UnmatchedIDs)
	}
}
