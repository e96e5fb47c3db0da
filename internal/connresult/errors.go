package connresult

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by DispatchError.
var (
	// ErrNoHost indicates StartResolution was called without a host.
	ErrNoHost = errors.New("no interactive host to dispatch to")

	// ErrResolutionConsumed indicates the resolution was already dispatched.
	ErrResolutionConsumed = errors.New("resolution already dispatched")

	// ErrResolutionCanceled indicates the resolution was canceled by its issuer.
	ErrResolutionCanceled = errors.New("resolution canceled")

	// ErrResolutionExpired indicates the resolution outlived its validity window.
	ErrResolutionExpired = errors.New("resolution expired")

	// ErrResolutionNotFound indicates the resolution's target no longer exists.
	ErrResolutionNotFound = errors.New("resolution not found")
)

// DispatchError is returned by StartResolution when a present resolution could
// not be dispatched. The resolution path is unusable; callers should fall back
// to a generic error or a different remediation.
type DispatchError struct {
	Code      ErrorCode
	RequestID int
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch resolution for %s (request %d): %v", e.Code, e.RequestID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError reports whether err is, or wraps, a *DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
