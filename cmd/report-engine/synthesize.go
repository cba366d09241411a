// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/ledger"
	"github.com/pdiddy/report-engine/internal/pipeline"
	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/pkg/types"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize [query]",
	Short: "Write a new research report for a question",
	Long: `Synthesize searches the literature for the question, extracts verbatim
quotes from each relevant paper, plans the report's sections, and writes
each section citing only the quoted papers. The report is saved as the
first version of a thread.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSynthesize,
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) > 0 {
		query = strings.Join(args, " ")
	}
	thread, _ := cmd.Flags().GetString("thread")

	p, st, err := newPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := p.Run(ctx, pipeline.Request{Query: query, ThreadID: thread, Progress: progressPrinter(os.Stderr)})
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

// progressPrinter writes one line per pipeline stage to w.
func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(stage, message string) {
		fmt.Fprintf(w, "[%s] %s\n", stage, message)
	}
}

// runOutput is the JSON form of a completed run.
type runOutput struct {
	RunID    string                `json:"run_id"`
	ThreadID string                `json:"thread_id"`
	Saved    bool                  `json:"saved"`
	Report   *types.Report         `json:"report"`
	Edit     *types.EditResult     `json:"edit,omitempty"`
	Decision *types.SearchDecision `json:"decision,omitempty"`
	Plan     *types.EditPlan       `json:"plan,omitempty"`
	Usage    ledger.Snapshot       `json:"usage"`
}

func printResult(cmd *cobra.Command, res *pipeline.Result) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runOutput{
			RunID:    res.RunID,
			ThreadID: res.ThreadID,
			Saved:    res.Saved,
			Report:   res.Report,
			Edit:     res.Edit,
			Decision: res.Decision,
			Plan:     res.Plan,
			Usage:    res.Usage,
		})
	}

	if err := render.Markdown(os.Stdout, res.Report, render.Options{NumberCitations: true}); err != nil {
		return err
	}
	printUsage(os.Stderr, res)
	return nil
}

func printUsage(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "\nThread %s (run %s)\n", res.ThreadID, res.RunID)
	if res.Edit != nil {
		fmt.Fprintf(w, "Edit: %s\n", res.Edit.Summary)
	}
	fmt.Fprintf(w, "Model calls: %d, tokens: %d, cost: $%.4f (report total $%.4f)\n",
		res.Usage.Calls, res.Usage.Usage.Total, res.Usage.Cost, res.Report.Cost)
	for _, name := range res.Usage.StageNames() {
		st := res.Usage.Stages[name]
		logger.Debug("stage usage", zap.String("stage", name), zap.Int("calls", st.Calls), zap.Float64("cost_usd", st.Cost))
	}
	if !res.Saved {
		fmt.Fprintln(w, "Report unchanged; nothing saved.")
	}
}

func init() {
	synthesizeCmd.Flags().String("query", "", "research question (may also be given as arguments)")
	synthesizeCmd.Flags().String("thread", "", "thread id for the new report (default: generated)")
	synthesizeCmd.Flags().Bool("json", false, "output the run result as JSON")

	rootCmd.AddCommand(synthesizeCmd)
}
