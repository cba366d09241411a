// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/render"
	"github.com/pdiddy/report-engine/internal/store"
	"github.com/pdiddy/report-engine/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show, list, and export stored reports",
	Long: `Report reads the versioned report store. Each thread holds every saved
version of one report; show renders the latest (or a chosen) version,
history lists the versions, and export writes the thread with its cited
papers to the exports directory.`,
}

// --- show subcommand ---

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render a stored report",
	Long: `Show renders a thread's report as Markdown with a numbered reference
list, or its cited papers as BibTeX or CSL for use with Pandoc.`,
	RunE: runReportShow,
}

func runReportShow(cmd *cobra.Command, args []string) error {
	thread, _ := cmd.Flags().GetString("thread")
	ver, _ := cmd.Flags().GetInt("version")
	format, _ := cmd.Flags().GetString("format")
	snippets, _ := cmd.Flags().GetBool("snippets")
	rawKeys, _ := cmd.Flags().GetBool("raw-keys")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	var r *types.Report
	if ver > 0 {
		r, err = st.LoadVersion(ctx, thread, ver)
	} else {
		r, err = st.Load(ctx, thread)
	}
	if err != nil {
		return err
	}

	switch format {
	case "markdown", "md", "":
		return render.Markdown(os.Stdout, r, render.Options{NumberCitations: !rawKeys, Snippets: snippets})
	case "bibtex", "bib":
		_, err := fmt.Fprint(os.Stdout, render.BibTeX(r))
		return err
	case "csl-yaml":
		return render.CSL(os.Stdout, r, "yaml")
	case "csl-json":
		return render.CSL(os.Stdout, r, "json")
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	default:
		return fmt.Errorf("unsupported format %q: use markdown, bibtex, csl-yaml, csl-json, or json", format)
	}
}

// --- history subcommand ---

var reportHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List the saved versions of a thread",
	RunE:  runReportHistory,
}

func runReportHistory(cmd *cobra.Command, args []string) error {
	thread, _ := cmd.Flags().GetString("thread")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	versions, err := st.History(context.Background(), thread)
	if err != nil {
		return err
	}
	return printVersions(cmd, versions)
}

// --- list subcommand ---

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, most recently saved first",
	Long: `List shows the latest version of every thread. With --paper it shows
only threads whose current report cites that paper.`,
	RunE: runReportList,
}

func runReportList(cmd *cobra.Command, args []string) error {
	paper, _ := cmd.Flags().GetString("paper")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	versions, err := st.Threads(ctx)
	if err != nil {
		return err
	}
	if paper != "" {
		citing, err := st.CitingThreads(ctx, paper)
		if err != nil {
			return err
		}
		keep := make(map[string]bool, len(citing))
		for _, id := range citing {
			keep[id] = true
		}
		filtered := versions[:0]
		for _, v := range versions {
			if keep[v.ThreadID] {
				filtered = append(filtered, v)
			}
		}
		versions = filtered
	}
	return printVersions(cmd, versions)
}

func printVersions(cmd *cobra.Command, versions []store.Version) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(versions)
	}

	if len(versions) == 0 {
		fmt.Fprintln(os.Stdout, "No reports found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-3s  %-40s  %-4s  %-9s  %s\n", "THREAD", "VER", "TITLE", "SECT", "COST", "SAVED")
	for _, v := range versions {
		title := v.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-3d  %-40s  %-4d  $%-8.4f  %s\n",
			v.ThreadID, v.Version, title, v.Sections, v.Cost, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(os.Stdout, "\n%d versions\n", len(versions))
	return nil
}

// --- export subcommand ---

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a thread to YAML or JSON",
	Long: `Export writes a thread's current report, its version history, and the
metadata of every cited paper to <data-dir>/exports/<thread>.yaml or
<thread>.json.`,
	RunE: runReportExport,
}

func runReportExport(cmd *cobra.Command, args []string) error {
	thread, _ := cmd.Flags().GetString("thread")
	format, _ := cmd.Flags().GetString("format")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var path string
	switch format {
	case "yaml", "":
		path, err = st.ExportYAML(context.Background(), thread)
	case "json":
		path, err = st.ExportJSON(context.Background(), thread)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

func init() {
	reportShowCmd.Flags().String("thread", "", "thread id (required)")
	reportShowCmd.Flags().Int("version", 0, "version to show (0 = latest)")
	reportShowCmd.Flags().String("format", "markdown", "output format: markdown, bibtex, csl-yaml, csl-json, json")
	reportShowCmd.Flags().Bool("snippets", false, "list supporting quotes under each reference")
	reportShowCmd.Flags().Bool("raw-keys", false, "keep reference keys instead of numbering citations")
	_ = reportShowCmd.MarkFlagRequired("thread")

	reportHistoryCmd.Flags().String("thread", "", "thread id (required)")
	reportHistoryCmd.Flags().Bool("json", false, "output versions as JSON")
	_ = reportHistoryCmd.MarkFlagRequired("thread")

	reportListCmd.Flags().String("paper", "", "only threads citing this paper id")
	reportListCmd.Flags().Bool("json", false, "output threads as JSON")

	reportExportCmd.Flags().String("thread", "", "thread id (required)")
	reportExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	_ = reportExportCmd.MarkFlagRequired("thread")

	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportHistoryCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportExportCmd)

	rootCmd.AddCommand(reportCmd)
}
