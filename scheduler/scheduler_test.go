package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_scrooper/config"
	"rental_scrooper/models"
)

type fakeRunner struct {
	mu      sync.Mutex
	ranges  [][2]int
	resumed []string
}

func (r *fakeRunner) RunAll(_ context.Context, start, end int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges = append(r.ranges, [2]int{start, end})
	return nil
}

func (r *fakeRunner) ResumeSite(_ context.Context, siteID string, start, end int) (*models.CrawlRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumed = append(r.resumed, siteID)
	return &models.CrawlRun{SiteID: siteID, StartPage: start, EndPage: end}, nil
}

type fakeStats []models.SiteStats

func (f fakeStats) GetSiteStats() ([]models.SiteStats, error) { return f, nil }

func testConfig() *config.Config {
	return &config.Config{Scheduler: config.SchedulerConfig{StartPage: 1, EndPage: 100}}
}

func TestTriggerNowUsesConfiguredRange(t *testing.T) {
	r := &fakeRunner{}
	s := New(testConfig(), r, nil)

	require.NoError(t, s.TriggerNow(context.Background()))
	assert.Equal(t, [][2]int{{1, 100}}, r.ranges)
}

func TestResumeDue(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)
	old := now.Add(-time.Hour)

	r := &fakeRunner{}
	s := New(testConfig(), r, fakeStats{
		{SiteID: "bj", ResumePage: 7, LastRunAt: &old},
		{SiteID: "sh", ResumePage: 3, LastRunAt: &recent},
		{SiteID: "gz", ResumePage: 0, LastRunAt: &old},
	})

	s.resumeDue(context.Background(), now)
	assert.Equal(t, []string{"bj"}, r.resumed)
}

func TestStartRejectsBadCron(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Cron = "not a cron"
	s := New(cfg, &fakeRunner{}, nil)

	assert.Error(t, s.Start(context.Background()))
	s.Stop()
}

func TestIntervalSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Interval = 10 * time.Millisecond
	r := &fakeRunner{}
	s := New(cfg, r, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.ranges) > 0
	}, time.Second, 5*time.Millisecond)
}
