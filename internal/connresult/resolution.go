package connresult

import (
	"context"
	"sync/atomic"
)

// Completion result codes reported by a host when an interactive flow ends.
const (
	// ResultOK means the flow completed and the connection should be retried.
	ResultOK = -1
	// ResultCanceled means the user backed out of the flow.
	ResultCanceled = 0
	// ResultFirstUser is the first value available for host-specific outcomes.
	ResultFirstUser = 1
)

// ShouldRetry reports whether a completion result code means the caller should
// attempt the connection again. Any other value means the issue is unresolved
// and the same failure is likely to recur.
func ShouldRetry(resultCode int) bool {
	return resultCode == ResultOK
}

// Intent describes the interactive flow a host should start.
type Intent struct {
	// Action is the remediation kind, usually ErrorCode.Action().
	Action string `json:"action"`
	// Target is what the host opens, typically a URL.
	Target string `json:"target"`
	// Service names the background service being remediated.
	Service string `json:"service,omitempty"`
	// Extras carries host-specific parameters.
	Extras map[string]string `json:"extras,omitempty"`
}

// Host is the interactive surface that presents resolution flows to the user.
// The host reports completion through its own callback channel, tagged with
// the request ID it was given.
type Host interface {
	Launch(ctx context.Context, intent Intent, requestID int) error
}

// Resolution is a deferred interactive action that may fix a failed attempt.
// Implementations wrap whatever handle is needed to start the flow.
type Resolution interface {
	// Dispatch starts the flow on host. It must fail rather than start
	// anything when the capability is no longer valid.
	Dispatch(ctx context.Context, host Host, requestID int) error
}

// DispatchFunc adapts a function to the Resolution interface. The function
// decides its own re-trigger policy.
type DispatchFunc func(ctx context.Context, host Host, requestID int) error

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, host Host, requestID int) error {
	if f == nil {
		return ErrResolutionNotFound
	}
	return f(ctx, host, requestID)
}

const (
	oneShotPending int32 = iota
	oneShotDispatched
	oneShotCanceled
)

// OneShot is an in-memory resolution that launches its intent at most once.
// A second dispatch fails with ErrResolutionConsumed, a dispatch after Cancel
// fails with ErrResolutionCanceled. If the host refuses the launch the
// capability stays usable.
type OneShot struct {
	intent Intent
	state  atomic.Int32
}

// NewOneShot returns a pending single-use resolution for intent.
func NewOneShot(intent Intent) *OneShot {
	return &OneShot{intent: intent}
}

// Intent returns the flow this resolution starts.
func (o *OneShot) Intent() Intent {
	return o.intent
}

// Dispatch implements Resolution.
func (o *OneShot) Dispatch(ctx context.Context, host Host, requestID int) error {
	if o == nil {
		return ErrResolutionNotFound
	}
	if host == nil {
		return ErrNoHost
	}
	if !o.state.CompareAndSwap(oneShotPending, oneShotDispatched) {
		if o.state.Load() == oneShotCanceled {
			return ErrResolutionCanceled
		}
		return ErrResolutionConsumed
	}
	if err := host.Launch(ctx, o.intent, requestID); err != nil {
		o.state.CompareAndSwap(oneShotDispatched, oneShotPending)
		return err
	}
	return nil
}

// Cancel invalidates a pending resolution. It returns false if the resolution
// was already dispatched or canceled.
func (o *OneShot) Cancel() bool {
	if o == nil {
		return false
	}
	return o.state.CompareAndSwap(oneShotPending, oneShotCanceled)
}

// Dispatched reports whether the intent has been launched.
func (o *OneShot) Dispatched() bool {
	return o.state.Load() == oneShotDispatched
}
