package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"rental_scrooper/config"
	"rental_scrooper/logging"
	"rental_scrooper/models"
)

// Fetcher retrieves and parses one listing page. A non-nil error always
// comes with an empty result; callers treat it like an empty page.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (models.PageResult, error)
	Close() error
}

func NewFetcher(site *config.SiteConfig, cfg *config.Config, client *resty.Client) Fetcher {
	policy := RetryPolicyFrom(cfg.Scraper)
	switch site.Handler {
	case "browser":
		return NewBrowserFetcher(site, cfg.HTTP, policy)
	default:
		return NewHTTPFetcher(site, client, policy)
	}
}

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func RetryPolicyFrom(cfg config.ScraperConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// run calls op until it succeeds, returns a permanent error, or the retry
// budget is spent.
func (p RetryPolicy) run(ctx context.Context, page int, op func() error) error {
	return backoff.RetryNotify(op, p.backOff(ctx), func(err error, wait time.Duration) {
		logging.Warnf("page %d: %v, retrying in %s", page, err, wait.Round(time.Millisecond))
	})
}

// StatusError is returned for HTTP responses outside 2xx/3xx.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// classifyStatus marks client errors other than 429 as not worth retrying.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return &StatusError{Code: code}
	case code >= 400:
		return backoff.Permanent(&StatusError{Code: code})
	default:
		return nil
	}
}

type HTTPFetcher struct {
	site   *config.SiteConfig
	client *resty.Client
	retry  RetryPolicy
}

func NewHTTPFetcher(site *config.SiteConfig, client *resty.Client, retry RetryPolicy) *HTTPFetcher {
	return &HTTPFetcher{
		site:   site,
		client: client,
		retry:  retry,
	}
}

func (f *HTTPFetcher) FetchPage(ctx context.Context, page int) (models.PageResult, error) {
	url := f.site.PageURL(page)
	logging.Infof("%s: fetching page %d (%s)", f.site.ID, page, url)

	var body []byte
	err := f.retry.run(ctx, page, func() error {
		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return err
		}
		if err := classifyStatus(resp.StatusCode()); err != nil {
			return err
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return models.PageResult{Page: page, Status: models.PageStatusFetchFailed}, fmt.Errorf("fetch page %d: %w", page, err)
	}

	return ParsePage(page, bytes.NewReader(body))
}

func (f *HTTPFetcher) Close() error {
	return nil
}
