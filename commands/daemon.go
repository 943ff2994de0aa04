package commands

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"rental_scrooper/api"
	"rental_scrooper/scheduler"
)

func init() {
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Runs scheduled crawls and serves the status API until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		log.Printf("Loaded %d site configs", len(cfg.Sites))
		for _, id := range cfg.SiteIDs() {
			log.Printf("  - %s (%s)", cfg.Sites[id].Name, id)
		}

		sched := scheduler.New(cfg, rt.orchestrator, rt.store)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		server := api.NewServer(cfg, rt.store, rt.orchestrator, sched.TriggerNow)
		if rt.pg != nil {
			server.SetDistricts(rt.pg)
		}
		server.Start(ctx)

		log.Println("Daemon running. Press Ctrl+C to stop.")
		<-ctx.Done()

		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("API shutdown error: %v", err)
		}
		log.Println("Goodbye!")
		return nil
	},
}
