// Package host provides the interactive surfaces resolution flows are
// launched on.
package host

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/logs"
)

// BrowserHost opens resolution targets with the OS opener and tracks the
// request IDs it launched until their completion is reported.
type BrowserHost struct {
	tracker

	logger *zap.Logger
	open   Opener
	notify Notifier
}

// Option configures a BrowserHost.
type Option func(*BrowserHost)

// WithOpener replaces the OS opener.
func WithOpener(open Opener) Option {
	return func(h *BrowserHost) { h.open = open }
}

// WithNotifier enables desktop notifications on launch.
func WithNotifier(notify Notifier) Option {
	return func(h *BrowserHost) { h.notify = notify }
}

// NewBrowserHost creates a host that opens targets with OpenBrowser.
func NewBrowserHost(logger *zap.Logger, opts ...Option) *BrowserHost {
	h := &BrowserHost{
		logger: logger,
		open:   OpenBrowser,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Launch implements connresult.Host.
func (h *BrowserHost) Launch(ctx context.Context, intent connresult.Intent, requestID int) error {
	if intent.Target == "" {
		return ErrNoTarget
	}
	if err := h.reserve(requestID, intent); err != nil {
		return err
	}

	if !HasGUIEnvironment() {
		h.logger.Warn("No GUI session detected - attempting to launch browser anyway. If nothing appears, copy/paste the URL manually.",
			zap.String("service", intent.Service))
	}

	if err := h.open(ctx, intent.Target); err != nil {
		h.release(requestID)
		return fmt.Errorf("failed to open %s: %w", logs.MaskTarget(intent.Target), err)
	}

	h.logger.Info("Launched resolution flow",
		zap.String("service", intent.Service),
		zap.String("action", intent.Action),
		zap.String("target", logs.MaskTarget(intent.Target)),
		zap.Int("request_id", requestID))

	if h.notify != nil {
		title := "Action required"
		if intent.Service != "" {
			title = fmt.Sprintf("%s: action required", intent.Service)
		}
		if err := h.notify(title, fmt.Sprintf("Continue in your browser to %s.", actionLabel(intent.Action))); err != nil {
			h.logger.Debug("Desktop notification failed", zap.Error(err))
		}
	}

	return nil
}

// actionLabel renders an action such as "sign_in" for humans.
func actionLabel(action string) string {
	if action == "" {
		return "resolve"
	}
	return strings.ReplaceAll(action, "_", " ")
}
