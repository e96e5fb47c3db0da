package connresult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ConnectionResult is the immutable outcome of one connection attempt.
// The zero value is a successful result without a resolution.
type ConnectionResult struct {
	code       ErrorCode
	resolution Resolution
}

// New pairs code with an optional resolution. The pairing is not validated: a
// Success result may carry a resolution, but it is never treated as actionable.
func New(code ErrorCode, resolution Resolution) ConnectionResult {
	return ConnectionResult{code: code, resolution: resolution}
}

// ErrorCode returns the classified outcome.
func (r ConnectionResult) ErrorCode() ErrorCode {
	return r.code
}

// Resolution returns the stored resolution, or nil.
func (r ConnectionResult) Resolution() Resolution {
	return r.resolution
}

// IsSuccess reports whether the connection succeeded.
func (r ConnectionResult) IsSuccess() bool {
	return r.code == Success
}

// HasResolution reports whether StartResolution would start an interactive
// flow.
func (r ConnectionResult) HasResolution() bool {
	return r.code != Success && !isNilResolution(r.resolution)
}

// isNilResolution reports whether res is nil or a typed nil such as a nil
// *OneShot stored in the interface.
func isNilResolution(res Resolution) bool {
	if res == nil {
		return true
	}
	v := reflect.ValueOf(res)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// StartResolution dispatches the resolution on host, tagging the eventual
// completion with requestID. When HasResolution is false it does nothing and
// returns nil. It does not wait for the interactive flow; once the host
// reports ResultOK the caller should attempt the connection again.
//
// Any failure is returned as a *DispatchError and is never retried here.
func (r ConnectionResult) StartResolution(ctx context.Context, host Host, requestID int) error {
	if !r.HasResolution() {
		return nil
	}
	if host == nil {
		return &DispatchError{Code: r.code, RequestID: requestID, Err: ErrNoHost}
	}
	if err := r.resolution.Dispatch(ctx, host, requestID); err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			return err
		}
		return &DispatchError{Code: r.code, RequestID: requestID, Err: err}
	}
	return nil
}

func (r ConnectionResult) String() string {
	if r.IsSuccess() {
		return "ConnectionResult{SUCCESS}"
	}
	return fmt.Sprintf("ConnectionResult{code=%s, resolution=%t}", r.code, r.HasResolution())
}

type resultJSON struct {
	ErrorCode      ErrorCode      `json:"error_code"`
	ErrorName      string         `json:"error_name"`
	Recoverability Recoverability `json:"recoverability"`
	Action         string         `json:"action,omitempty"`
	Success        bool           `json:"success"`
	HasResolution  bool           `json:"has_resolution"`
}

// MarshalJSON encodes the classification. The resolution itself is opaque and
// is only reflected through has_resolution.
func (r ConnectionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		ErrorCode:      r.code,
		ErrorName:      r.code.String(),
		Recoverability: r.code.Recoverability(),
		Action:         r.code.Action(),
		Success:        r.IsSuccess(),
		HasResolution:  r.HasResolution(),
	})
}
