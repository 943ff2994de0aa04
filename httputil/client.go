package httputil

import (
	"fmt"
	"net/http/cookiejar"
	"net/url"

	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"rental_scrooper/config"
)

// NewLimiter builds the process-wide request throttle. A non-positive rate
// disables throttling.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// NewClient returns a resty client carrying the configured headers, the
// parsed cookie string for every site URL and the shared limiter.
func NewClient(cfg config.HTTPConfig, limiter *rate.Limiter, siteURLs ...string) (*resty.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	if cfg.CookieString != "" {
		cookies := ParseCookies(cfg.CookieString)
		// Without a path the jar scopes each cookie to the seed URL's
		// directory, so later list pages would go out bare.
		for _, c := range cookies {
			c.Path = "/"
		}
		for _, raw := range siteURLs {
			u, err := url.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("parse site url %q: %w", raw, err)
			}
			jar.SetCookies(u, cookies)
		}
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(cfg.Timeout)
	client.SetHeaders(map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2",
		"Connection":      "keep-alive",
	})
	if cfg.ProxyURL != "" {
		client.SetProxy(cfg.ProxyURL)
	}

	if limiter != nil {
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return limiter.Wait(r.Context())
		})
	}
	if cfg.RotateUserAgent {
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.SetHeader("User-Agent", browser.Random())
			return nil
		})
	}

	return client, nil
}
