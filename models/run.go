package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type CrawlRun struct {
	ID            int64      `json:"id" db:"id"`
	SiteID        string     `json:"site_id" db:"site_id"`
	StartPage     int        `json:"start_page" db:"start_page"`
	EndPage       int        `json:"end_page" db:"end_page"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	StopReason    StopReason `json:"stop_reason" db:"stop_reason"`
	PagesFetched  int        `json:"pages_fetched" db:"pages_fetched"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	SkippedCount  int        `json:"skipped_count" db:"skipped_count"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
	OutputPath    string     `json:"output_path" db:"output_path"`
}

func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type SiteStats struct {
	SiteID            string     `json:"site_id" db:"site_id"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalRuns         int        `json:"total_runs" db:"total_runs"`
	TotalListings     int        `json:"total_listings" db:"total_listings"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
	ResumePage        int        `json:"resume_page" db:"resume_page"`
}
