package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid crawl configuration")
	// ErrPoolClosed is returned by Submit once Shutdown has been requested.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrPoolSaturated is returned by Submit when every slot is busy.
	ErrPoolSaturated = errors.New("worker pool has no free slot")
	// ErrAlreadyStarted is returned when Run is called twice on one Orchestrator.
	ErrAlreadyStarted = errors.New("crawl already started")
)

// ConfigError reports a crawl setting that prevents construction.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

// Is lets callers match any configuration failure with errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// AdmissionReason explains why the frontier refused a URL.
type AdmissionReason string

// Frontier rejection reasons.
const (
	ReasonMalformed         AdmissionReason = "malformed"
	ReasonUnsupportedScheme AdmissionReason = "unsupported_scheme"
	ReasonPageType          AdmissionReason = "page_type"
	ReasonDuplicateHost     AdmissionReason = "duplicate_host"
	ReasonFrontierFull      AdmissionReason = "frontier_full"
)

// AdmissionError is returned when a URL cannot enter the frontier. It is
// always recovered locally; the link is simply dropped.
type AdmissionError struct {
	URL    string
	Reason AdmissionReason
	Err    error
}

func (e *AdmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admit %q: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("admit %q: %s", e.URL, e.Reason)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// FetchErrorKind groups fetch failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchUnreachableHost FetchErrorKind = "unreachable_host"
	FetchInvalidPort     FetchErrorKind = "invalid_port"
	FetchTransport       FetchErrorKind = "transport"
	FetchTimeout         FetchErrorKind = "timeout"
	FetchCanceled        FetchErrorKind = "canceled"
)

// FetchError is the failure reported by a Fetcher for a single location.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyFetchError converts an arbitrary fetch failure into a *FetchError.
// Errors that already carry a kind are returned as-is.
func ClassifyFetchError(rawURL string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchTransport
	var (
		dnsErr  *net.DNSError
		addrErr *net.AddrError
		netErr  net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.Is(err, context.Canceled):
		kind = FetchCanceled
	case errors.As(err, &dnsErr):
		kind = FetchUnreachableHost
	case errors.As(err, &addrErr):
		kind = FetchInvalidPort
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}
