package commands

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"rental_scrooper/scraper"
)

var (
	crawlSite   *string
	crawlResume *bool
)

func init() {
	crawlSite = crawlCmd.Flags().String("site", "", "Only crawl this site id (default: every configured site).")
	crawlResume = crawlCmd.Flags().Bool("resume", false, "Continue from where the last cancelled crawl stopped.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [end] | crawl [start] [end]",
	Short: "Crawls a page range and appends the listings to the dataset.",
	Long: `Crawls listing pages start..end (inclusive).

With no arguments the page range is asked for interactively, with one
argument it is 1..end and with two it is start..end.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := pageRange(args)
		if err != nil {
			return err
		}
		if err := scraper.ValidateRange(start, end); err != nil {
			return err
		}
		end, err = capEndPage(start, end, cfg.Scraper.MaxPages)
		if err != nil {
			return err
		}

		siteIDs := cfg.SiteIDs()
		if *crawlSite != "" {
			if _, ok := cfg.Sites[*crawlSite]; !ok {
				return fmt.Errorf("unknown site %q (configured: %s)", *crawlSite, strings.Join(siteIDs, ", "))
			}
			siteIDs = []string{*crawlSite}
		}

		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		log.Printf("Crawling pages %d-%d (%d pages) for %s", start, end, end-start+1, strings.Join(siteIDs, ", "))

		var failed []string
		for _, id := range siteIDs {
			if ctx.Err() != nil {
				break
			}
			if *crawlResume {
				_, err = rt.orchestrator.ResumeSite(ctx, id, start, end)
			} else {
				_, err = rt.orchestrator.RunSite(ctx, id, start, end)
			}
			if err != nil {
				log.Printf("Error crawling %s: %v", id, err)
				failed = append(failed, id)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("crawl failed for %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

// capEndPage trims end to MAX_PAGES. A start beyond it is an error since
// no page of the range may be crawled.
func capEndPage(start, end, maxPages int) (int, error) {
	if start > maxPages {
		return 0, fmt.Errorf("start page %d is above MAX_PAGES (%d)", start, maxPages)
	}
	if end > maxPages {
		log.Printf("End page %d is above MAX_PAGES, capping at %d", end, maxPages)
		return maxPages, nil
	}
	return end, nil
}

func pageRange(args []string) (int, int, error) {
	if len(args) == 0 {
		return promptPageRange(input.DefaultUI())
	}
	return ParsePageRange(args)
}

// ParsePageRange reads "[end]" or "[start] [end]" command arguments.
func ParsePageRange(args []string) (int, int, error) {
	switch len(args) {
	case 1:
		end, err := parsePage(args[0])
		if err != nil {
			return 0, 0, err
		}
		return 1, end, nil
	case 2:
		start, err := parsePage(args[0])
		if err != nil {
			return 0, 0, err
		}
		end, err := parsePage(args[1])
		if err != nil {
			return 0, 0, err
		}
		return start, end, nil
	default:
		return 0, 0, fmt.Errorf("expected 1 or 2 page arguments, got %d", len(args))
	}
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("page %q is not an integer", s)
	}
	return n, nil
}

func validatePositivePage(s string) error {
	n, err := parsePage(s)
	if err != nil {
		return err
	}
	if n < 1 {
		return errors.New("page must be at least 1")
	}
	return nil
}

func promptPageRange(ui *input.UI) (int, int, error) {
	startRaw, err := ui.Ask("Start page", &input.Options{
		Default:      "1",
		Loop:         true,
		ValidateFunc: validatePositivePage,
	})
	if err != nil {
		return 0, 0, promptError(err)
	}
	start, _ := parsePage(startRaw)

	endRaw, err := ui.Ask("End page", &input.Options{
		Required: true,
		Loop:     true,
		ValidateFunc: func(s string) error {
			if err := validatePositivePage(s); err != nil {
				return err
			}
			if n, _ := parsePage(s); n < start {
				return fmt.Errorf("end page must be at least %d", start)
			}
			return nil
		},
	})
	if err != nil {
		return 0, 0, promptError(err)
	}
	end, _ := parsePage(endRaw)
	return start, end, nil
}

func promptError(err error) error {
	if errors.Is(err, input.ErrInterrupted) {
		return errors.New("cancelled")
	}
	return err
}
