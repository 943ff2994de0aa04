package commands

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rental_scrooper/config"
	"rental_scrooper/httputil"
	"rental_scrooper/scraper"
	"rental_scrooper/storage"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "rental_scrooper",
	Short:         "rental_scrooper crawls Lianjia rental listings and analyses the collected data.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func ExecuteContext(ctx context.Context, c *config.Config) {
	cfg = c
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// siteURLs are the first listing pages, used to scope cookies.
func siteURLs() []string {
	var urls []string
	for _, id := range cfg.SiteIDs() {
		urls = append(urls, cfg.Sites[id].PageURL(1))
	}
	return urls
}

type runtime struct {
	store        *storage.SQLiteStore
	pg           *storage.PostgresStore
	orchestrator *scraper.Orchestrator
}

// newRuntime opens the run ledger, the optional Postgres warehouse and the
// shared HTTP client behind one orchestrator.
func newRuntime(ctx context.Context) (*runtime, error) {
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	limiter := httputil.NewLimiter(cfg.HTTP.RequestsPerSecond)
	client, err := httputil.NewClient(cfg.HTTP, limiter, siteURLs()...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create http client: %w", err)
	}

	rt := &runtime{
		store:        store,
		orchestrator: scraper.NewOrchestrator(cfg, store, client),
	}

	if cfg.Postgres.DSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Printf("Warning: Postgres unavailable, continuing without it: %v", err)
		} else {
			log.Printf("Connected to Postgres: %s", storage.MaskConnectionString(cfg.Postgres.DSN))
			rt.pg = pg
			rt.orchestrator.SetWarehouse(pg)
		}
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.pg != nil {
		rt.pg.Close()
	}
	rt.store.Close()
}
