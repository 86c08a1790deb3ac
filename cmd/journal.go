package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cropwatch/internal/store"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the local run journal",
	Long:  "Commands for listing past backfill runs and viewing the batches they failed to classify. The journal is inspection-only; it never feeds articles back into a run.",
}

// -- journal runs --

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List backfill runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initJournal(ctx)
		if err != nil {
			return eris.Wrap(err, "open journal")
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "journal runs")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- journal failures --

var journalFailuresCmd = &cobra.Command{
	Use:   "failures <run-id>",
	Short: "Show the failed batches of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initJournal(ctx)
		if err != nil {
			return eris.Wrap(err, "open journal")
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "journal failures")
		}

		batches, err := st.ListFailedBatches(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "journal failures")
		}

		out := struct {
			Run     *store.Run          `json:"run"`
			Batches []store.FailedBatch `json:"failed_batches"`
		}{Run: run, Batches: batches}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func formatRunsList(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tRANGE\tSEARCHED\tUNIQUE\tCLASSIFIED\tAPPENDED\tFAILED\tCREATED")
	for _, r := range runs {
		var searched, unique, classified, appended, failed string
		if r.Counts != nil {
			searched = fmt.Sprint(r.Counts.Searched)
			unique = fmt.Sprint(r.Counts.Unique)
			classified = fmt.Sprint(r.Counts.Classified)
			appended = fmt.Sprint(r.Counts.Appended)
			failed = fmt.Sprint(r.Counts.FailedBatches)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.StartDate, r.EndDate,
			searched, unique, classified, appended, failed,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

func init() {
	journalRunsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalFailuresCmd)
	rootCmd.AddCommand(journalCmd)
}
