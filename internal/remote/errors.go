package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
)

// APIError wraps any failed call to the host API.
type APIError struct {
	Operation  string
	Repo       string
	Path       string
	StatusCode int
	// Codes holds the machine-readable codes from the response body,
	// for example "too_large".
	Codes []string
	Err   error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.Repo != "" {
		b.WriteString(" ")
		b.WriteString(e.Repo)
	}
	if e.Path != "" {
		b.WriteString(":")
		b.WriteString(e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HasCode reports whether the host attached the given error code.
func (e *APIError) HasCode(code string) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a 404 from the host.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsTooLarge reports whether the host refused to serve a file inline
// because of its size.
func IsTooLarge(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.HasCode("too_large")
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err is a primary or secondary rate-limit
// rejection.
func IsRateLimited(err error) bool {
	var rl *github.RateLimitError
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &rl) || errors.As(err, &abuse) {
		return true
	}
	return StatusCode(err) == http.StatusTooManyRequests
}

// wrapError converts a go-github failure into an *APIError.
func wrapError(op, repo, path string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	apiErr := &APIError{
		Operation:  op,
		Repo:       repo,
		Path:       path,
		StatusCode: getStatusCode(resp),
		Err:        err,
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		for _, e := range ghErr.Errors {
			if e.Code != "" {
				apiErr.Codes = append(apiErr.Codes, e.Code)
			}
		}
		if apiErr.StatusCode == 0 && ghErr.Response != nil {
			apiErr.StatusCode = ghErr.Response.StatusCode
		}
	}
	return apiErr
}

// getStatusCode extracts the HTTP status code from a GitHub response.
func getStatusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.Response.StatusCode
}
