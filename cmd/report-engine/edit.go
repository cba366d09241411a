// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/pipeline"
)

var editCmd = &cobra.Command{
	Use:   "edit [instruction]",
	Short: "Revise a stored report under an instruction",
	Long: `Edit loads the thread's current report and applies a natural-language
instruction to it. The engine decides whether new evidence is needed,
plans a per-section action (keep, expand, modify, replace, delete, or new
sections), rewrites only the affected sections, and saves the result as a
new version. Papers named with --paper are always fetched and quoted.

An instruction that changes nothing leaves the stored report untouched.`,
	Args: cobra.ArbitraryArgs,
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	thread, _ := cmd.Flags().GetString("thread")
	instruction, _ := cmd.Flags().GetString("instruction")
	if instruction == "" && len(args) > 0 {
		instruction = strings.Join(args, " ")
	}
	papers, _ := cmd.Flags().GetStringSlice("paper")

	p, st, err := newPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := p.Run(ctx, pipeline.Request{
		ThreadID:        thread,
		EditExisting:    true,
		EditInstruction: instruction,
		MentionedPapers: papers,
		Progress:        progressPrinter(os.Stderr),
	})
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func init() {
	editCmd.Flags().String("thread", "", "thread id of the report to edit (required)")
	editCmd.Flags().String("instruction", "", "edit instruction (may also be given as arguments)")
	editCmd.Flags().StringSlice("paper", nil, "paper id to include as evidence (repeatable)")
	editCmd.Flags().Bool("json", false, "output the run result, edit summary, and plan as JSON")
	_ = editCmd.MarkFlagRequired("thread")

	rootCmd.AddCommand(editCmd)
}
