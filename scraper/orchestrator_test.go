package scraper

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_scrooper/config"
	"rental_scrooper/models"
	"rental_scrooper/storage"
)

type fakeWarehouse struct {
	created  int
	finished []*storage.Batch
	copied   int
}

func (w *fakeWarehouse) CreateBatch(_ context.Context, b *storage.Batch) error {
	w.created++
	return nil
}

func (w *fakeWarehouse) FinishBatch(_ context.Context, b *storage.Batch) error {
	w.finished = append(w.finished, b)
	return nil
}

func (w *fakeWarehouse) CopyListings(_ context.Context, _ *storage.Batch, listings []models.Listing) (int64, error) {
	w.copied += len(listings)
	return int64(len(listings)), nil
}

func newTestOrchestrator(t *testing.T, f Fetcher) (*Orchestrator, *storage.SQLiteStore, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "scraper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Scraper: config.ScraperConfig{EmptyPageThreshold: 3},
		Output:  config.OutputConfig{Dir: filepath.Join(dir, "data"), Fields: models.DefaultFields},
		Sites: map[string]*config.SiteConfig{
			"bj": {ID: "bj", Name: "Lianjia Beijing", City: "北京", OutputPrefix: "bj_rental_data",
				URLTemplate: "https://bj.lianjia.com/zufang/pg%d/"},
		},
	}

	o := NewOrchestrator(cfg, store, nil)
	o.fetcherFor = func(*config.SiteConfig) Fetcher { return f }
	o.sleep = func(context.Context, time.Duration) error { return nil }
	o.SetOutput(&bytes.Buffer{})
	return o, store, cfg
}

func TestRunSite_PersistsDatasetAndLedger(t *testing.T) {
	f := &fakeFetcher{perPage: map[int]int{1: 2, 2: 2, 3: 2, 4: 2, 5: 2, 9: 2, 10: 2}}
	o, store, cfg := newTestOrchestrator(t, f)
	wh := &fakeWarehouse{}
	o.SetWarehouse(wh)

	run, err := o.RunSite(context.Background(), "bj", 1, 10)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.StopReasonGap, run.StopReason)
	assert.Equal(t, 8, run.PagesFetched)
	assert.Equal(t, 10, run.ListingsFound)
	assert.Equal(t, 3, run.SkippedCount)

	listings, err := storage.ReadDataset(run.OutputPath)
	require.NoError(t, err)
	assert.Len(t, listings, 10)
	assert.Equal(t, "p1-0", listings[0].Title)

	skipped, err := storage.ReadSkippedPages(cfg.Output.Dir, "bj_rental_data")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7, 8}, skipped)

	stored, err := store.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)

	pages, err := store.GetSkippedPages(run.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7, 8}, pages)

	assert.Equal(t, 1, wh.created)
	assert.Equal(t, 10, wh.copied)
	require.Len(t, wh.finished, 1)
	assert.Equal(t, models.RunStatusCompleted, wh.finished[0].Status)
}

func TestRunSite_AppendsAcrossRuns(t *testing.T) {
	f := &fakeFetcher{perPage: map[int]int{1: 3}}
	o, _, _ := newTestOrchestrator(t, f)

	first, err := o.RunSite(context.Background(), "bj", 1, 1)
	require.NoError(t, err)
	_, err = o.RunSite(context.Background(), "bj", 1, 1)
	require.NoError(t, err)

	listings, err := storage.ReadDataset(first.OutputPath)
	require.NoError(t, err)
	assert.Len(t, listings, 6)
}

func TestRunSite_CancelledSavesProgressAndResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{perPage: map[int]int{1: 2, 2: 2, 3: 2, 4: 2}, cancelAt: 3, cancel: cancel}
	o, store, _ := newTestOrchestrator(t, f)

	run, err := o.RunSite(ctx, "bj", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, models.StopReasonCancelled, run.StopReason)
	assert.Equal(t, 4, run.ListingsFound)

	listings, err := storage.ReadDataset(run.OutputPath)
	require.NoError(t, err)
	assert.Len(t, listings, 4)

	page, err := store.GetResumePage("bj")
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	f.requested = nil
	f.cancelAt = 0
	_, err = o.ResumeSite(context.Background(), "bj", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, f.requested)

	page, err = store.GetResumePage("bj")
	require.NoError(t, err)
	assert.Equal(t, 0, page)
}

func TestRunSite_RejectsBadInput(t *testing.T) {
	f := &fakeFetcher{}
	o, _, _ := newTestOrchestrator(t, f)

	_, err := o.RunSite(context.Background(), "bj", 5, 2)
	require.Error(t, err)
	_, err = o.RunSite(context.Background(), "nope", 1, 2)
	require.Error(t, err)
	assert.Empty(t, f.requested)
}

func TestRunAll_SkipsWhenPaused(t *testing.T) {
	f := &fakeFetcher{perPage: map[int]int{1: 1}}
	o, _, _ := newTestOrchestrator(t, f)

	o.Pause()
	require.NoError(t, o.RunAll(context.Background(), 1, 1))
	assert.Empty(t, f.requested)

	o.Resume()
	require.NoError(t, o.RunAll(context.Background(), 1, 1))
	assert.Equal(t, []int{1}, f.requested)
}
