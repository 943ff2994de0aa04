package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"rental_scrooper/models"
	"rental_scrooper/storage"
)

var runsLimit *int

func init() {
	runsLimit = runsCmd.Flags().IntP("limit", "n", 20, "Number of runs to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [-n <limit>]",
	Short: "Lists recent crawl runs from the run ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(*runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No crawl runs recorded yet.")
			return nil
		}
		renderRuns(runs)
		return nil
	},
}

func renderRuns(runs []models.CrawlRun) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Site", "Pages", "Started", "Duration", "Status", "Stop", "Listings", "Skipped", "Errors"})
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			r.ID,
			r.SiteID,
			fmt.Sprintf("%d-%d", r.StartPage, r.EndPage),
			humanize.Time(r.StartedAt),
			duration,
			r.Status,
			r.StopReason,
			humanize.Comma(int64(r.ListingsFound)),
			r.SkippedCount,
			r.ErrorsCount,
		})
	}
	t.Render()
}
