package commands

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rental_scrooper/analysis"
	"rental_scrooper/storage"
)

var (
	analyzePublish     *bool
	analyzeKeepOutlier *bool
	analyzeLatest      *bool
)

func init() {
	analyzePublish = analyzeCmd.Flags().Bool("publish", false, "Upload the report, charts and datasets to S3.")
	analyzeKeepOutlier = analyzeCmd.Flags().Bool("keep-outliers", false, "Do not drop rows outside the price and area bounds.")
	analyzeLatest = analyzeCmd.Flags().Bool("latest", false, "Only analyse the most recently written dataset.")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [dataset.csv ...]",
	Short: "Builds the rental market report from the collected datasets.",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 && *analyzeLatest {
			latest, err := analysis.LatestDataset(cfg.Output.Dir)
			if err != nil {
				return err
			}
			paths = []string{latest}
		}

		records, err := analysis.LoadDataset(cfg, paths...)
		if err != nil {
			return err
		}

		opts := analysis.DefaultCleanOptions()
		opts.DropOutliers = !*analyzeKeepOutlier
		cleaned, cleanReport := analysis.Clean(records, opts)
		if len(cleaned) == 0 {
			return fmt.Errorf("no usable rows in %d loaded records", len(records))
		}

		report := analysis.Analyze(cleaned, analysis.Salaries(cfg))
		report.Clean = cleanReport
		report.Sources = paths
		if len(report.Sources) == 0 {
			report.Sources, _ = analysis.DatasetFiles(cfg.Output.Dir)
		}

		charts, err := analysis.RenderCharts(report, cleaned, cfg.Output.ReportDir)
		if err != nil {
			log.Printf("Warning: chart rendering failed: %v", err)
		}
		report.Charts = charts

		reportPath, err := analysis.WriteMarkdown(report, cfg.Output.ReportDir)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

		analysis.PrintReport(os.Stdout, report)
		log.Printf("Report written to %s (%d charts)", reportPath, len(charts))

		if !*analyzePublish {
			return nil
		}
		return publish(cmd, reportPath, charts, report.Sources)
	},
}

func publish(cmd *cobra.Command, reportPath string, charts, datasets []string) error {
	if !cfg.S3.Enabled() {
		return fmt.Errorf("--publish needs S3_BUCKET to be set")
	}
	uploader, err := storage.NewS3Uploader(cmd.Context(), cfg.S3)
	if err != nil {
		return err
	}

	uploads := []struct {
		folder string
		paths  []string
	}{
		{"reports", append([]string{reportPath}, charts...)},
		{"datasets", datasets},
	}
	for _, u := range uploads {
		for _, path := range u.paths {
			key, err := uploader.UploadFile(cmd.Context(), u.folder, path)
			if err != nil {
				return fmt.Errorf("publish %s: %w", path, err)
			}
			log.Printf("Published %s", uploader.PublicURL(key))
		}
	}
	return nil
}
