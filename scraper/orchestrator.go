package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"rental_scrooper/analysis"
	"rental_scrooper/config"
	"rental_scrooper/models"
	"rental_scrooper/storage"
)

// RunLedger records crawl runs; *storage.SQLiteStore implements it.
type RunLedger interface {
	CreateRun(run *models.CrawlRun) (int64, error)
	UpdateRun(run *models.CrawlRun) error
	Log(runID *int64, level models.LogLevel, message, siteID string) error
	AddSkippedPages(runID int64, siteID string, pages []int) error
	UpdateSiteStats(siteID string) error
	GetResumePage(siteID string) (int, error)
	SetResumePage(siteID string, page int) error
	ClearResumePage(siteID string) error
}

// Warehouse receives a copy of every crawled batch; *storage.PostgresStore
// implements it.
type Warehouse interface {
	CreateBatch(ctx context.Context, b *storage.Batch) error
	FinishBatch(ctx context.Context, b *storage.Batch) error
	CopyListings(ctx context.Context, b *storage.Batch, listings []models.Listing) (int64, error)
}

var ErrSiteBusy = errors.New("site crawl already running")

type Orchestrator struct {
	cfg       *config.Config
	ledger    RunLedger
	warehouse Warehouse
	client    *resty.Client
	out       io.Writer

	// fetcherFor builds the page fetcher of a site; replaced in tests.
	fetcherFor func(site *config.SiteConfig) Fetcher
	// sleep is handed to every crawler; nil keeps the real delay.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	paused  bool
	running map[string]bool
}

func NewOrchestrator(cfg *config.Config, ledger RunLedger, client *resty.Client) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		ledger:  ledger,
		client:  client,
		out:     os.Stdout,
		running: make(map[string]bool),
	}
	o.fetcherFor = func(site *config.SiteConfig) Fetcher {
		return NewFetcher(site, o.cfg, o.client)
	}
	return o
}

// SetWarehouse enables the Postgres copy of every batch.
func (o *Orchestrator) SetWarehouse(w Warehouse) {
	o.warehouse = w
}

// SetOutput redirects the post-crawl overview tables.
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.out = w
}

// RunAll crawls [start, end] for every configured site in turn. Per-site
// failures are logged and do not stop the remaining sites.
func (o *Orchestrator) RunAll(ctx context.Context, start, end int) error {
	if o.IsPaused() {
		log.Println("Scraper is paused, skipping run")
		return nil
	}

	var failed int
	for _, siteID := range o.cfg.SiteIDs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := o.RunSite(ctx, siteID, start, end); err != nil {
			log.Printf("Error running site %s: %v", siteID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sites failed", failed, len(o.cfg.Sites))
	}
	return nil
}

// ResumeSite continues a site from the page after its last cancelled crawl,
// or from start when nothing is pending.
func (o *Orchestrator) ResumeSite(ctx context.Context, siteID string, start, end int) (*models.CrawlRun, error) {
	if page, err := o.ledger.GetResumePage(siteID); err != nil {
		log.Printf("Warning: failed to read resume page for %s: %v", siteID, err)
	} else if page > 0 {
		log.Printf("Resuming %s from page %d", siteID, page)
		start = page
	}
	if end < start {
		end = start
	}
	return o.RunSite(ctx, siteID, start, end)
}

// RunSite crawls one site over [start, end] and persists whatever was
// collected, including after cancellation. Only an invalid range, an
// unknown site or a failed dataset write return an error.
func (o *Orchestrator) RunSite(ctx context.Context, siteID string, start, end int) (*models.CrawlRun, error) {
	site, ok := o.cfg.Sites[siteID]
	if !ok {
		return nil, fmt.Errorf("unknown site: %s", siteID)
	}
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	if !o.acquire(siteID) {
		return nil, fmt.Errorf("%w: %s", ErrSiteBusy, siteID)
	}
	defer o.release(siteID)

	run := &models.CrawlRun{
		SiteID:    siteID,
		StartPage: start,
		EndPage:   end,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if runID, err := o.ledger.CreateRun(run); err != nil {
		log.Printf("Warning: failed to record run for %s: %v", siteID, err)
	} else {
		run.ID = runID
	}

	batch := o.startBatch(ctx, site, run)

	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Starting crawl of %s, pages %d-%d", site.Name, start, end), siteID)

	fetcher := o.fetcherFor(site)
	defer fetcher.Close()

	crawler := NewCrawler(fetcher, o.cfg.Scraper)
	if o.sleep != nil {
		crawler.Sleep = o.sleep
	}
	crawler.OnPage = func(pr models.PageResult, err error) {
		switch {
		case err != nil:
			run.ErrorsCount++
			o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Page %d failed: %v", pr.Page, err), siteID)
		case pr.Dropped > 0 || pr.UnparsedPrices > 0:
			o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Page %d: %d listings, %d dropped, %d unparsed prices",
				pr.Page, len(pr.Listings), pr.Dropped, pr.UnparsedPrices), siteID)
		}
		run.ErrorsCount += pr.Dropped
	}

	var saveErr error
	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		if saveErr != nil {
			run.Status = models.RunStatusFailed
		}
		if err := o.ledger.UpdateRun(run); err != nil {
			log.Printf("Warning: failed to update run %d: %v", run.ID, err)
		}
		if err := o.ledger.UpdateSiteStats(siteID); err != nil {
			log.Printf("Warning: failed to update stats for %s: %v", siteID, err)
		}
		o.finishBatch(batch, run)
	}()

	result, err := crawler.Crawl(ctx, start, end)
	if err != nil {
		run.Status = models.RunStatusFailed
		o.log(run.ID, models.LogLevelError, fmt.Sprintf("Crawl error: %v", err), siteID)
		return run, err
	}

	run.PagesFetched = result.PagesFetched
	run.ListingsFound = len(result.Listings)
	run.SkippedCount = len(result.SkippedPages)
	run.StopReason = result.Stop

	// Persist even when the crawl was cancelled.
	run.OutputPath, saveErr = o.persist(context.WithoutCancel(ctx), site, run, batch, result)
	if saveErr != nil {
		o.log(run.ID, models.LogLevelError, fmt.Sprintf("Dataset write failed: %v", saveErr), siteID)
		return run, saveErr
	}

	o.trackResume(siteID, result)

	run.Status = models.RunStatusCompleted
	o.log(run.ID, models.LogLevelInfo,
		fmt.Sprintf("Completed (%s): %d pages, %d listings, %d skipped pages",
			result.Stop, run.PagesFetched, run.ListingsFound, run.SkippedCount), siteID)

	if len(result.Listings) > 0 && o.out != nil {
		analysis.PrintOverview(o.out, siteID, analysis.Overview(result.Listings, 5))
	}
	return run, nil
}

// persist writes the dataset, then the optional sinks. Only the dataset
// write can fail the run.
func (o *Orchestrator) persist(ctx context.Context, site *config.SiteConfig, run *models.CrawlRun, batch *storage.Batch, result *models.CrawlResult) (string, error) {
	var path string
	if len(result.Listings) > 0 {
		writer := storage.NewDatasetWriter(o.cfg.Output.Dir, site.OutputPrefix, o.cfg.Output.Fields)
		p, rows, err := writer.Save(result.Listings, storage.ModeAppend)
		if err != nil {
			return "", err
		}
		path = p
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Saved %d listings to %s (%d rows total)", len(result.Listings), p, rows), site.ID)
	} else {
		o.log(run.ID, models.LogLevelWarn, "No listings collected, dataset left untouched", site.ID)
	}

	if len(result.SkippedPages) > 0 {
		if p, err := storage.AppendSkippedPages(o.cfg.Output.Dir, site.OutputPrefix, result.SkippedPages); err != nil {
			o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Failed to write skipped pages: %v", err), site.ID)
		} else {
			o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Skipped pages %v written to %s", result.SkippedPages, p), site.ID)
		}
		if run.ID != 0 {
			if err := o.ledger.AddSkippedPages(run.ID, site.ID, result.SkippedPages); err != nil {
				log.Printf("Warning: failed to record skipped pages: %v", err)
			}
		}
	}

	if batch != nil && len(result.Listings) > 0 {
		n, err := o.warehouse.CopyListings(ctx, batch, result.Listings)
		if err != nil {
			o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Postgres copy failed: %v", err), site.ID)
		} else {
			o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Copied %d listings to Postgres batch %s", n, batch.ID), site.ID)
		}
	}
	return path, nil
}

// trackResume remembers where a cancelled crawl stopped.
func (o *Orchestrator) trackResume(siteID string, result *models.CrawlResult) {
	var err error
	if result.Stop == models.StopReasonCancelled {
		next := result.Start
		if result.LastPage > 0 {
			next = result.LastPage + 1
		}
		err = o.ledger.SetResumePage(siteID, next)
	} else {
		err = o.ledger.ClearResumePage(siteID)
	}
	if err != nil {
		log.Printf("Warning: failed to update resume page for %s: %v", siteID, err)
	}
}

func (o *Orchestrator) startBatch(ctx context.Context, site *config.SiteConfig, run *models.CrawlRun) *storage.Batch {
	if o.warehouse == nil {
		return nil
	}
	b := &storage.Batch{
		SiteID:    site.ID,
		City:      site.City,
		StartPage: run.StartPage,
		EndPage:   run.EndPage,
		StartedAt: run.StartedAt,
		Status:    models.RunStatusRunning,
	}
	if err := o.warehouse.CreateBatch(ctx, b); err != nil {
		log.Printf("Warning: failed to create Postgres batch: %v", err)
		return nil
	}
	return b
}

func (o *Orchestrator) finishBatch(b *storage.Batch, run *models.CrawlRun) {
	if b == nil {
		return
	}
	b.FinishedAt = run.FinishedAt
	b.Status = run.Status
	b.ListingsFound = run.ListingsFound

	// The crawl context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.warehouse.FinishBatch(ctx, b); err != nil {
		log.Printf("Warning: failed to finish Postgres batch %s: %v", b.ID, err)
	}
}

func (o *Orchestrator) acquire(siteID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[siteID] {
		return false
	}
	o.running[siteID] = true
	return true
}

func (o *Orchestrator) release(siteID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, siteID)
}

func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	log.Println("Scraper paused")
}

func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	log.Println("Scraper resumed")
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Running lists the sites with a crawl in progress.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []string
	for _, id := range o.cfg.SiteIDs() {
		if o.running[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func (o *Orchestrator) log(runID int64, level models.LogLevel, message, siteID string) {
	log.Printf("[%s] %s: %s", level, siteID, message)
	var id *int64
	if runID != 0 {
		id = &runID
	}
	o.ledger.Log(id, level, message, siteID)
}

var (
	_ RunLedger = (*storage.SQLiteStore)(nil)
	_ Warehouse = (*storage.PostgresStore)(nil)
)
