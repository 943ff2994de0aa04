package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rental_scrooper/config"
	"rental_scrooper/models"
)

// Runner is the crawl entry point the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context, start, end int) error
	ResumeSite(ctx context.Context, siteID string, start, end int) (*models.CrawlRun, error)
}

// StatsSource exposes per-site resume state.
type StatsSource interface {
	GetSiteStats() ([]models.SiteStats, error)
}

const (
	resumeDelay        = 15 * time.Minute
	resumePollInterval = time.Minute
)

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	stats  StatsSource
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once

	// serialises scheduled, resumed and manual runs
	runMu sync.Mutex
}

func New(cfg *config.Config, runner Runner, stats StatsSource) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		stats:  stats,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.stats != nil {
		go s.pollResumes(ctx)
	}

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.TriggerNow(ctx); err != nil {
				log.Printf("Scheduled run error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.TriggerNow(ctx); err != nil {
						log.Printf("Scheduled run error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to API requests")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.once.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// TriggerNow runs the configured page range for every site.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runner.RunAll(ctx, s.cfg.Scheduler.StartPage, s.cfg.Scheduler.EndPage)
}

func (s *Scheduler) pollResumes(ctx context.Context) {
	ticker := time.NewTicker(resumePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.resumeDue(ctx, time.Now())
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// resumeDue restarts cancelled crawls whose last run is at least
// resumeDelay old.
func (s *Scheduler) resumeDue(ctx context.Context, now time.Time) {
	stats, err := s.stats.GetSiteStats()
	if err != nil {
		log.Printf("Error checking resume pages: %v", err)
		return
	}

	for _, st := range stats {
		if st.ResumePage <= 0 {
			continue
		}
		if st.LastRunAt != nil && now.Sub(*st.LastRunAt) < resumeDelay {
			continue
		}

		log.Printf("Resuming crawl for %s from page %d", st.SiteID, st.ResumePage)
		s.runMu.Lock()
		_, err := s.runner.ResumeSite(ctx, st.SiteID, st.ResumePage, s.cfg.Scheduler.EndPage)
		s.runMu.Unlock()
		if err != nil {
			log.Printf("Resume error for %s: %v", st.SiteID, err)
		}
	}
}
