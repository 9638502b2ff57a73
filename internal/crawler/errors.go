package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotModified marks a conditional fetch that hit the validator cache.
// It is a skip signal, not a failure.
var ErrNotModified = errors.New("not modified")

// PolicyViolationError is raised when robots.txt disallows a URL. It aborts
// the brand's crawl and is never retried.
type PolicyViolationError struct {
	URL string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("blocked by robots.txt: %s", e.URL)
}

// HTTPError carries a protocol-level error response. These bypass the retry
// policy: the origin answered, it just said no.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d fetching %s", e.StatusCode, e.URL)
}

// Unavailable reports whether the error is a per-product miss (403/404) that
// should be skipped without failing the crawl.
func (e *HTTPError) Unavailable() bool {
	return e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusNotFound
}

// IsPolicyViolation reports whether err is a robots denial.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolationError
	return errors.As(err, &pv)
}
