package httputil

import (
	"net/http"
	"strings"
)

// ParseCookies splits a browser-style "k1=v1; k2=v2" header value into
// cookies. Pairs without "=" or with an empty name are skipped; values may
// themselves contain "=".
func ParseCookies(raw string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:  name,
			Value: strings.TrimSpace(value),
		})
	}
	return cookies
}
