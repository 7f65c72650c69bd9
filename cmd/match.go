package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/north-cloud/huv-matcher/internal/aimatch"
	"github.com/north-cloud/huv-matcher/internal/domain"
)

func newMatchCommand() *cobra.Command {
	var (
		sourceID string
		useAI    bool
		timeout  time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a single source item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			out := cmd.OutOrStdout()
			if !useAI {
				result, matchErr := app.Runner.MatchHeuristic(ctx, sourceID)
				if matchErr != nil {
					return matchErr
				}
				if asJSON {
					return writeJSON(out, result)
				}
				renderResult(out, &result)
				return nil
			}

			outcome, err := app.Runner.MatchAI(ctx, sourceID, aimatch.Options{Timeout: timeout})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, outcome)
			}
			renderResult(out, &outcome.Result)
			fmt.Fprintf(out, "AI path: %s (%s)\n", outcome.Path, outcome.Terminal)
			if outcome.Cause != nil {
				fmt.Fprintf(out, "Cause: %v\n", outcome.Cause)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source-id", "", "source item id")
	cmd.Flags().BoolVar(&useAI, "ai", false, "use the AI matcher with heuristic fallback")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "AI request timeout (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("source-id")
	return cmd
}

func renderResult(w io.Writer, r *domain.MatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Match " + r.SourceID)

	target := r.TargetID
	if target == "" {
		target = "(no match)"
	}
	t.AppendHeader(table.Row{"Target", "Confidence", "Strategy", "Method", "Reason"})
	t.AppendRow(table.Row{target, fmt.Sprintf("%.2f", r.Confidence), r.Strategy, r.Method, r.Reason})
	for _, ru := range r.RunnerUps {
		t.AppendRow(table.Row{"  " + ru.TargetID, fmt.Sprintf("%.2f", ru.Confidence), ru.Strategy, "runner-up", ru.Reason})
	}
	t.Render()

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
