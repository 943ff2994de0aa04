package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"rental_scrooper/models"
)

// SQLiteStore is the local run ledger: crawl runs, their log lines, the
// pages they skipped and per-site resume points.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		start_page INTEGER,
		end_page INTEGER,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		stop_reason TEXT DEFAULT '',
		pages_fetched INTEGER DEFAULT 0,
		listings_found INTEGER DEFAULT 0,
		skipped_count INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		output_path TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS crawl_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE TABLE IF NOT EXISTS skipped_pages (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		site_id TEXT,
		page INTEGER,
		recorded_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS site_stats (
		site_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_runs INTEGER DEFAULT 0,
		total_listings INTEGER DEFAULT 0,
		success_rate REAL,
		avg_run_duration_sec INTEGER,
		resume_page INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_logs_run ON crawl_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON crawl_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_skipped_site ON skipped_pages(site_id, page);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.CrawlRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO crawl_runs (site_id, start_page, end_page, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.SiteID, run.StartPage, run.EndPage, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.CrawlRun) error {
	_, err := s.db.Exec(`
		UPDATE crawl_runs SET finished_at = ?, status = ?, stop_reason = ?, pages_fetched = ?,
			listings_found = ?, skipped_count = ?, errors_count = ?, output_path = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.StopReason, run.PagesFetched,
		run.ListingsFound, run.SkippedCount, run.ErrorsCount, run.OutputPath, run.ID)
	return err
}

const runColumns = `id, site_id, start_page, end_page, started_at, finished_at, status,
	COALESCE(stop_reason, ''), pages_fetched, listings_found, skipped_count, errors_count,
	COALESCE(output_path, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.CrawlRun, error) {
	var r models.CrawlRun
	var finished sql.NullTime
	var stop string
	err := row.Scan(&r.ID, &r.SiteID, &r.StartPage, &r.EndPage, &r.StartedAt, &finished, &r.Status,
		&stop, &r.PagesFetched, &r.ListingsFound, &r.SkippedCount, &r.ErrorsCount, &r.OutputPath)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	r.StopReason = models.StopReason(stop)
	return &r, nil
}

func (s *SQLiteStore) GetRun(id int64) (*models.CrawlRun, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM crawl_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(limit int) ([]models.CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM crawl_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_logs (run_id, timestamp, level, message, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, siteID)
	return err
}

func (s *SQLiteStore) GetLogs(runID int64) ([]models.CrawlLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, site_id
		FROM crawl_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.CrawlLog
	for rows.Next() {
		var l models.CrawlLog
		var rid sql.NullInt64
		if err := rows.Scan(&l.ID, &rid, &l.Timestamp, &l.Level, &l.Message, &l.SiteID); err != nil {
			return nil, err
		}
		if rid.Valid {
			l.RunID = &rid.Int64
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) AddSkippedPages(runID int64, siteID string, pages []int) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO skipped_pages (run_id, site_id, page, recorded_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range pages {
		if _, err := stmt.Exec(runID, siteID, p, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSkippedPages(runID int64) ([]int, error) {
	rows, err := s.db.Query(`SELECT page FROM skipped_pages WHERE run_id = ? ORDER BY page`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *SQLiteStore) UpdateSiteStats(siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site_id, last_run_at, last_run_status, total_runs, total_listings,
			success_rate, avg_run_duration_sec)
		SELECT
			?,
			(SELECT started_at FROM crawl_runs WHERE site_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM crawl_runs WHERE site_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM crawl_runs WHERE site_id = ?),
			(SELECT COALESCE(SUM(listings_found), 0) FROM crawl_runs WHERE site_id = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM crawl_runs WHERE site_id = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM crawl_runs WHERE site_id = ? AND finished_at IS NOT NULL)
		WHERE true
		ON CONFLICT(site_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_runs = excluded.total_runs,
			total_listings = excluded.total_listings,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		siteID, siteID, siteID, siteID, siteID, siteID, siteID)
	return err
}

func (s *SQLiteStore) GetSiteStats() ([]models.SiteStats, error) {
	rows, err := s.db.Query(`
		SELECT site_id, last_run_at, COALESCE(last_run_status, ''), COALESCE(total_runs, 0),
			COALESCE(total_listings, 0), COALESCE(success_rate, 0), COALESCE(avg_run_duration_sec, 0),
			COALESCE(resume_page, 0)
		FROM site_stats ORDER BY site_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.SiteStats
	for rows.Next() {
		var st models.SiteStats
		var last sql.NullTime
		if err := rows.Scan(&st.SiteID, &last, &st.LastRunStatus, &st.TotalRuns, &st.TotalListings,
			&st.SuccessRate, &st.AvgRunDurationSec, &st.ResumePage); err != nil {
			return nil, err
		}
		if last.Valid {
			st.LastRunAt = &last.Time
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) GetResumePage(siteID string) (int, error) {
	var page int
	err := s.db.QueryRow(`
		SELECT COALESCE(resume_page, 0) FROM site_stats WHERE site_id = ?`, siteID).Scan(&page)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return page, err
}

func (s *SQLiteStore) SetResumePage(siteID string, page int) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site_id, resume_page)
		VALUES (?, ?)
		ON CONFLICT(site_id) DO UPDATE SET resume_page = ?`, siteID, page, page)
	return err
}

func (s *SQLiteStore) ClearResumePage(siteID string) error {
	_, err := s.db.Exec(`
		UPDATE site_stats SET resume_page = 0 WHERE site_id = ?`, siteID)
	return err
}
