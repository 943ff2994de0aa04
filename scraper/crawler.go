package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"rental_scrooper/config"
	"rental_scrooper/logging"
	"rental_scrooper/models"
)

// ValidateRange checks an inclusive page range before any request is made.
func ValidateRange(start, end int) error {
	if start < 1 {
		return fmt.Errorf("start page must be at least 1, got %d", start)
	}
	if end < start {
		return fmt.Errorf("end page %d is before start page %d", end, start)
	}
	return nil
}

// Crawler walks a page range sequentially and stops early once enough
// consecutive pages come back empty.
type Crawler struct {
	fetcher   Fetcher
	threshold int
	delayMin  time.Duration
	delayMax  time.Duration

	// Sleep waits between non-empty pages; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnPage, when set, sees every page result as it arrives.
	OnPage func(result models.PageResult, err error)
}

func NewCrawler(fetcher Fetcher, cfg config.ScraperConfig) *Crawler {
	threshold := cfg.EmptyPageThreshold
	if threshold < 1 {
		threshold = 3
	}
	return &Crawler{
		fetcher:   fetcher,
		threshold: threshold,
		delayMin:  cfg.DelayMin,
		delayMax:  cfg.DelayMax,
		Sleep:     sleepContext,
	}
}

func (c *Crawler) Crawl(ctx context.Context, start, end int) (*models.CrawlResult, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}

	result := &models.CrawlResult{
		Start: start,
		End:   end,
		Stop:  models.StopReasonRange,
	}
	consecutiveEmpty := 0

	for page := start; page <= end; page++ {
		if ctx.Err() != nil {
			result.Stop = models.StopReasonCancelled
			break
		}

		pr, err := c.fetcher.FetchPage(ctx, page)
		if ctx.Err() != nil {
			result.Stop = models.StopReasonCancelled
			break
		}

		result.PagesFetched++
		result.LastPage = page
		if err != nil {
			logging.Warnf("page %d: %v", page, err)
		}
		if c.OnPage != nil {
			c.OnPage(pr, err)
		}

		if pr.IsEmpty() {
			consecutiveEmpty++
			result.SkippedPages = append(result.SkippedPages, page)
			logging.Warnf("page %d: no listings (%d consecutive)", page, consecutiveEmpty)
			if consecutiveEmpty >= c.threshold {
				logging.Infof("%d consecutive empty pages, stopping at page %d", c.threshold, page)
				result.Stop = models.StopReasonGap
				break
			}
			continue
		}

		consecutiveEmpty = 0
		result.Listings = append(result.Listings, pr.Listings...)
		logging.Infof("page %d: %d listings (total %d)", page, len(pr.Listings), len(result.Listings))

		if page < end {
			if err := c.Sleep(ctx, c.delay()); err != nil {
				result.Stop = models.StopReasonCancelled
				break
			}
		}
	}

	logging.Infof("crawl %d-%d finished (%s): %d listings, %d skipped pages",
		start, end, result.Stop, len(result.Listings), len(result.SkippedPages))
	return result, nil
}

// delay is uniform in [delayMin, delayMax].
func (c *Crawler) delay() time.Duration {
	if c.delayMax <= c.delayMin {
		return c.delayMin
	}
	return c.delayMin + time.Duration(rand.Int63n(int64(c.delayMax-c.delayMin)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
