// =============================================================================
// Simland HDX Scraper - Status Command
// =============================================================================
//
// COMMAND USAGE:
//   simland status
//
// Prints the latest batch recorded in the progress database: when it
// started, whether it completed, the dataset it stopped on and the outcome
// of every dataset processed so far.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/simland/hdx-scraper-simland/internal/progress"
)

// statusCmd represents the 'status' command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of the latest run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		db, err := progress.Open(cfg.ProgressDB)
		if err != nil {
			return fmt.Errorf("failed to open progress database: %w", err)
		}
		defer db.Close()

		status, err := db.Latest(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(out io.Writer, status *progress.Status) {
	if status == nil {
		fmt.Fprintln(out, "No runs recorded.")
		return
	}

	fmt.Fprintf(out, "Batch:      %s\n", status.BatchID)
	fmt.Fprintf(out, "Datasets:   %d\n", status.Total)
	fmt.Fprintf(out, "Started:    %s\n", status.StartedAt)
	if status.CompletedAt != "" {
		fmt.Fprintf(out, "Completed:  %s\n", status.CompletedAt)
	} else {
		fmt.Fprintln(out, "Completed:  no")
		if status.Checkpoint != "" {
			fmt.Fprintf(out, "Resumes at: %s\n", status.Checkpoint)
		}
	}

	if len(status.Outcomes) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, o := range status.Outcomes {
		if o.Message != "" {
			fmt.Fprintf(out, "  %-40s %-10s %s\n", o.Name, o.Status, o.Message)
			continue
		}
		fmt.Fprintf(out, "  %-40s %s\n", o.Name, o.Status)
	}
}
