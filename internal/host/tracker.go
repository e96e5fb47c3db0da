package host

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

var (
	// ErrNoTarget is returned when an intent has nothing to open.
	ErrNoTarget = errors.New("intent has no target")

	// ErrRequestInFlight is returned when a request ID is already waiting
	// for a completion on this host.
	ErrRequestInFlight = errors.New("request id already in flight")
)

// CompletionHandler receives the result code of a finished flow.
type CompletionHandler func(ctx context.Context, requestID, resultCode int) error

// tracker remembers launched request IDs until their completion arrives.
type tracker struct {
	mu       sync.Mutex
	inflight map[int]connresult.Intent
	handler  CompletionHandler
}

func (t *tracker) reserve(requestID int, intent connresult.Intent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inflight == nil {
		t.inflight = make(map[int]connresult.Intent)
	}
	if _, ok := t.inflight[requestID]; ok {
		return ErrRequestInFlight
	}
	t.inflight[requestID] = intent
	return nil
}

func (t *tracker) release(requestID int) {
	t.mu.Lock()
	delete(t.inflight, requestID)
	t.mu.Unlock()
}

// OnComplete sets the handler completions are forwarded to.
func (t *tracker) OnComplete(handler CompletionHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Complete ends the flow for requestID and forwards resultCode to the
// completion handler. Request IDs this host never launched, for example
// after a restart, are forwarded too.
func (t *tracker) Complete(ctx context.Context, requestID, resultCode int) error {
	t.mu.Lock()
	delete(t.inflight, requestID)
	handler := t.handler
	t.mu.Unlock()

	if handler == nil {
		return nil
	}
	return handler(ctx, requestID, resultCode)
}

// InFlight returns the request IDs awaiting completion, in ascending order.
func (t *tracker) InFlight() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0, len(t.inflight))
	for id := range t.inflight {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
