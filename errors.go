package mediaparse

import (
	"errors"
	"fmt"

	"github.com/tetsuo/mediaparse/media"
)

var (
	// ErrNoProgress is returned when the parse loop stops advancing.
	ErrNoProgress = fmt.Errorf("%w: parse loop made no progress", media.ErrInternal)
	// ErrControllerReused is returned when a Controller is passed to a
	// second Parse call.
	ErrControllerReused = fmt.Errorf("%w: controller already used by another session", media.ErrUsage)
	// ErrTruncated is returned when the source ends before a demuxer got the
	// bytes it asked for.
	ErrTruncated = fmt.Errorf("%w: source ended early", media.ErrCorrupt)
)

// AbortError reports a session stopped through its Controller or context.
// It matches media.ErrAborted and its Cause.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	if e.Cause == nil {
		return "mediaparse: aborted"
	}
	return "mediaparse: aborted: " + e.Cause.Error()
}

func (e *AbortError) Unwrap() []error {
	if e.Cause == nil {
		return []error{media.ErrAborted}
	}
	return []error{media.ErrAborted, e.Cause}
}

// abortError converts a context cancellation cause into an *AbortError.
func abortError(cause error) error {
	var ae *AbortError
	if errors.As(cause, &ae) {
		return ae
	}
	return &AbortError{Cause: cause}
}

// ErrorAction is what Options.OnError decides for a failed session.
type ErrorAction int

const (
	// Rethrow returns the error from Parse.
	Rethrow ErrorAction = iota
	// StopWithPartialResult returns the fields resolved so far, with the
	// error recorded in Result.Err.
	StopWithPartialResult
)

func (a ErrorAction) String() string {
	if a == StopWithPartialResult {
		return "stop-with-partial-result"
	}
	return "rethrow"
}
