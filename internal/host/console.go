package host

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

// ConsoleHost prints resolution targets for headless sessions, leaving the
// user to open them by hand.
type ConsoleHost struct {
	tracker

	writeMu sync.Mutex
	w       io.Writer
}

// NewConsoleHost creates a host that writes to w.
func NewConsoleHost(w io.Writer) *ConsoleHost {
	return &ConsoleHost{w: w}
}

// Launch implements connresult.Host.
func (h *ConsoleHost) Launch(ctx context.Context, intent connresult.Intent, requestID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if intent.Target == "" {
		return ErrNoTarget
	}
	if err := h.reserve(requestID, intent); err != nil {
		return err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	service := intent.Service
	if service == "" {
		service = "unknown service"
	}
	_, err := fmt.Fprintf(h.w, "Open this URL to %s (%s, request %d):\n  %s\n",
		actionLabel(intent.Action), service, requestID, intent.Target)
	if err != nil {
		h.release(requestID)
		return fmt.Errorf("failed to write resolution target: %w", err)
	}
	return nil
}
