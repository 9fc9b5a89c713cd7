package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrFetch           = errors.New("fetch failed")
	ErrExtract         = errors.New("extraction failed")
	ErrCancelled       = errors.New("cancelled")
)

// FetchError reports a non-200 response or a transport failure.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	if target == ErrFetch {
		return true
	}
	return target == ErrCancelled && isContextErr(e.Err)
}

// ExtractError wraps whatever the extraction capability raised.
type ExtractError struct {
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract: %v", e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

func (e *ExtractError) Is(target error) bool {
	if target == ErrExtract {
		return true
	}
	return target == ErrCancelled && errors.Is(e.Err, context.Canceled)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled)
}

// FailureReason renders err as the human-readable failure_reason of an outcome.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	if err != ErrCancelled && errors.Is(err, ErrCancelled) {
		return ErrCancelled.Error() + ": " + err.Error()
	}
	return err.Error()
}
