package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable marks a store that can no longer be reached.
	// A crawl pass that sees it stops and surfaces it.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound is returned by EntityStore.Lookup for an unknown key.
	ErrNotFound = errors.New("entity not found")
	// ErrCrawlerFinished is returned when a single-use crawler is run twice.
	ErrCrawlerFinished = errors.New("crawler already ran")
)

// ConfigurationError reports an invalid crawler construction.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// FetchErrorKind distinguishes network blips from unusable documents.
type FetchErrorKind int

// Fetch error kinds.
const (
	// Transient covers connection failures, timeouts and non-2xx statuses.
	Transient FetchErrorKind = iota + 1
	// Permanent covers bodies that cannot be parsed or lack required structure.
	Permanent
)

func (k FetchErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// FetchError is returned for a page that could not be fetched or parsed.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch error for %s (status %d): %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a transient FetchError.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Transient
}

// IsPermanent reports whether err carries a permanent FetchError.
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Permanent
}

// IsFetchError reports whether err is a page-level fetch failure that callers skip.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
