package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes the ways a fetch can fail. Callers branch on the
// kind; the pipeline records it in the run's failure list.
type ErrorKind string

const (
	// KindNetwork is a transport failure that survived all retries.
	KindNetwork ErrorKind = "network"
	// KindBlocked is a definitive block: robots disallow, anti-bot page,
	// or persistent 403/429. The host is not retried within the run.
	KindBlocked ErrorKind = "blocked"
	// KindRateLimit means the local per-host budget could not be acquired
	// before the caller's timeout elapsed.
	KindRateLimit ErrorKind = "rate_limit"
	// KindPolicy means the injected access policy refused the URL.
	KindPolicy ErrorKind = "policy"
)

// Error is a structured fetch failure. All fetch failures are surfaced as
// *Error so callers never see a silent drop.
type Error struct {
	URL    string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsBlocked reports whether err is a fetch block (FetchBlocked).
func IsBlocked(err error) bool { return kindOf(err) == KindBlocked }

// IsRateLimited reports whether err is a local quota timeout (RateLimitExceeded).
func IsRateLimited(err error) bool { return kindOf(err) == KindRateLimit }

func kindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
