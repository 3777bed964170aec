// Package fetch implements the polite HTTP client used against the
// prefecture portals: rotating browser identities, randomized pacing,
// retry with backoff, and a headless-browser escalation for pages that
// only render under JavaScript.
package fetch

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Request names a page to fetch.
type Request struct {
	URL string
	// ForceRender skips the heuristic and goes straight to the headless
	// browser.
	ForceRender bool
}

// Result is one fetched page.
type Result struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	// Rendered is true when the body came from the headless browser.
	Rendered bool
}

// IsHTML reports whether the response declared an HTML content type. An
// absent Content-Type counts as HTML since the portals omit it on some
// error pages.
func (r Result) IsHTML() bool {
	ct := strings.ToLower(r.Headers.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// StatusError reports an HTTP status the client will not treat as a page.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// IsRateLimited reports whether the portal answered 429.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports a 5xx answer, which the client treats as
// transient like a network failure.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}
