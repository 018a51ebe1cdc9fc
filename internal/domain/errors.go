package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned for missing items and for items owned by someone else.
	ErrNotFound = errors.New("item not found")

	ErrInvalidURL   = errors.New("invalid url")
	ErrNoURLs       = errors.New("select at least one url to import")
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrEmptySummary = errors.New("summary must not be empty")

	// ErrUpstream marks failures of the scrape, search or LLM provider.
	ErrUpstream = errors.New("upstream provider failed")
)

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
