package fetcher

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrRateLimited marks an HTTP 429 response.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrMalformedPayload marks a response body that could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)

// TransientFetchError is a failure worth retrying: transport errors, 5xx and 429.
type TransientFetchError struct {
	Provider   string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider=%s transient status=%d url=%s: %v", e.Provider, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("provider=%s transient url=%s: %v", e.Provider, e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// TerminalFetchError marks an attempt that failed on the provider's verdict:
// 4xx other than 429, or a payload that does not decode. An HTTP 4xx is
// still retried within the attempt budget; it never ends the fallback chain.
type TerminalFetchError struct {
	Provider   string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TerminalFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider=%s terminal status=%d url=%s body=%q: %v", e.Provider, e.StatusCode, e.URL, e.Body, e.Err)
	}
	return fmt.Sprintf("provider=%s terminal url=%s: %v", e.Provider, e.URL, e.Err)
}

func (e *TerminalFetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsTerminal reports whether err is (or wraps) a TerminalFetchError.
func IsTerminal(err error) bool {
	var te *TerminalFetchError
	return errors.As(err, &te)
}
