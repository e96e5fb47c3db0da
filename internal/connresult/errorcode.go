// Package connresult describes the outcome of an attempt to connect to a
// background service, and the optional interactive resolution that may fix a
// failed attempt.
//
// IMPORTANT: the numeric ErrorCode values are a wire format. Persisted records
// and API clients depend on them, so values must never be renumbered and the
// gap at 12 must stay empty.
package connresult

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorCode classifies the outcome of a connection attempt.
type ErrorCode int

const (
	// Success indicates the connection was established.
	Success ErrorCode = 0

	// ServiceMissing indicates the service is not installed. Resolvable by
	// starting the install flow.
	ServiceMissing ErrorCode = 1

	// ServiceVersionUpdateRequired indicates the installed service is older
	// than the client requires. Resolvable by starting the update flow.
	ServiceVersionUpdateRequired ErrorCode = 2

	// ServiceDisabled indicates the service is installed but disabled.
	// Resolvable by starting the enable flow.
	ServiceDisabled ErrorCode = 3

	// SignInRequired indicates the user is not signed in. After the sign-in
	// flow completes with ResultOK further attempts should succeed.
	SignInRequired ErrorCode = 4

	// InvalidAccount indicates the requested account name is invalid. Fatal
	// for that account.
	InvalidAccount ErrorCode = 5

	// ResolutionRequired indicates some other interactive step is needed.
	// After it completes with ResultOK, further attempts should either succeed
	// or move on to the next issue that needs resolving.
	ResolutionRequired ErrorCode = 6

	// NetworkError indicates a network failure. Retrying should fix it.
	NetworkError ErrorCode = 7

	// InternalError indicates an internal failure. Retrying should fix it.
	InternalError ErrorCode = 8

	// ServiceInvalid indicates the installed service is not authentic.
	ServiceInvalid ErrorCode = 9

	// DeveloperError indicates the client is misconfigured. Not recoverable;
	// the logs carry the actionable detail.
	DeveloperError ErrorCode = 10

	// LicenseCheckFailed indicates the client is not licensed to the user.
	// Not recoverable.
	LicenseCheckFailed ErrorCode = 11

	// 12 is reserved and must not be assigned.

	// Canceled indicates the client canceled the attempt.
	Canceled ErrorCode = 13

	// Timeout indicates the attempt did not complete in time.
	Timeout ErrorCode = 14

	// Interrupted indicates the wait for the attempt was interrupted.
	Interrupted ErrorCode = 15

	// ApiUnavailable indicates a requested API is not available at all. An
	// update is unlikely to help; the API should be avoided.
	ApiUnavailable ErrorCode = 16 //nolint:revive // name kept for compatibility with existing callers

	// ExternalStorageRequired indicates mounted external storage is needed.
	//
	// Deprecated: retained so existing callers still compile and persisted
	// values still decode. Nothing in this module produces it.
	ExternalStorageRequired ErrorCode = 1500
)

// Recoverability describes what, if anything, can fix a failed attempt.
type Recoverability string

const (
	RecoverabilityNone       Recoverability = "none"
	RecoverabilityResolvable Recoverability = "resolvable"
	RecoverabilityRetryable  Recoverability = "retryable"
	RecoverabilityFatal      Recoverability = "fatal"
	RecoverabilityTerminal   Recoverability = "terminal"
)

// Recommended caller actions.
const (
	ActionNone      = ""
	ActionInstall   = "install"
	ActionUpdate    = "update"
	ActionEnable    = "enable"
	ActionSignIn    = "sign_in"
	ActionResolve   = "resolve"
	ActionRetry     = "retry"
	ActionAccount   = "choose_account"
	ActionReinstall = "reinstall"
	ActionFixClient = "fix_client"
	ActionAvoid     = "avoid_api"
	ActionStorage   = "mount_storage"
)

type codeInfo struct {
	name           string
	recoverability Recoverability
	action         string
	description    string
}

var codeTable = map[ErrorCode]codeInfo{
	Success:                      {"SUCCESS", RecoverabilityNone, ActionNone, "The connection was successful"},
	ServiceMissing:               {"SERVICE_MISSING", RecoverabilityResolvable, ActionInstall, "The service is not installed"},
	ServiceVersionUpdateRequired: {"SERVICE_VERSION_UPDATE_REQUIRED", RecoverabilityResolvable, ActionUpdate, "The installed service version is out of date"},
	ServiceDisabled:              {"SERVICE_DISABLED", RecoverabilityResolvable, ActionEnable, "The installed service has been disabled"},
	SignInRequired:               {"SIGN_IN_REQUIRED", RecoverabilityResolvable, ActionSignIn, "The user is not signed in"},
	InvalidAccount:               {"INVALID_ACCOUNT", RecoverabilityFatal, ActionAccount, "An invalid account name was specified"},
	ResolutionRequired:           {"RESOLUTION_REQUIRED", RecoverabilityResolvable, ActionResolve, "Completing the connection requires user interaction"},
	NetworkError:                 {"NETWORK_ERROR", RecoverabilityRetryable, ActionRetry, "A network error occurred"},
	InternalError:                {"INTERNAL_ERROR", RecoverabilityRetryable, ActionRetry, "An internal error occurred"},
	ServiceInvalid:               {"SERVICE_INVALID", RecoverabilityFatal, ActionReinstall, "The installed service is not authentic"},
	DeveloperError:               {"DEVELOPER_ERROR", RecoverabilityFatal, ActionFixClient, "The client is misconfigured"},
	LicenseCheckFailed:           {"LICENSE_CHECK_FAILED", RecoverabilityFatal, ActionNone, "The client is not licensed to the user"},
	Canceled:                     {"CANCELED", RecoverabilityTerminal, ActionNone, "The client canceled the connection"},
	Timeout:                      {"TIMEOUT", RecoverabilityRetryable, ActionRetry, "The connection attempt timed out"},
	Interrupted:                  {"INTERRUPTED", RecoverabilityRetryable, ActionRetry, "The wait for the connection was interrupted"},
	ApiUnavailable:               {"API_UNAVAILABLE", RecoverabilityFatal, ActionAvoid, "The requested API is not available"},
	ExternalStorageRequired:      {"EXTERNAL_STORAGE_REQUIRED", RecoverabilityResolvable, ActionStorage, "External storage is required but not mounted (deprecated)"},
}

// codeOrder lists every defined code in ascending numeric order.
var codeOrder = []ErrorCode{
	Success,
	ServiceMissing,
	ServiceVersionUpdateRequired,
	ServiceDisabled,
	SignInRequired,
	InvalidAccount,
	ResolutionRequired,
	NetworkError,
	InternalError,
	ServiceInvalid,
	DeveloperError,
	LicenseCheckFailed,
	Canceled,
	Timeout,
	Interrupted,
	ApiUnavailable,
	ExternalStorageRequired,
}

// Codes returns every defined code in ascending numeric order.
func Codes() []ErrorCode {
	out := make([]ErrorCode, len(codeOrder))
	copy(out, codeOrder)
	return out
}

// IsKnown reports whether c is one of the defined codes.
func (c ErrorCode) IsKnown() bool {
	_, ok := codeTable[c]
	return ok
}

// IsDeprecated reports whether c is kept only for compatibility.
func (c ErrorCode) IsDeprecated() bool {
	return c == ExternalStorageRequired
}

// String returns the canonical upper-case name, e.g. "SIGN_IN_REQUIRED".
// Undefined values render as "UNKNOWN_ERROR_CODE(n)".
func (c ErrorCode) String() string {
	if info, ok := codeTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN_ERROR_CODE(%d)", int(c))
}

// Description returns a short human-readable explanation.
func (c ErrorCode) Description() string {
	if info, ok := codeTable[c]; ok {
		return info.description
	}
	return "Unknown error code"
}

// Recoverability returns the documented recovery class. Undefined values are
// treated as fatal.
func (c ErrorCode) Recoverability() Recoverability {
	if info, ok := codeTable[c]; ok {
		return info.recoverability
	}
	return RecoverabilityFatal
}

// Action returns the recommended caller action, or ActionNone.
func (c ErrorCode) Action() string {
	if info, ok := codeTable[c]; ok {
		return info.action
	}
	return ActionNone
}

// ParseErrorCode accepts a canonical name (case-insensitive, "-" or "_"
// separators) or a decimal value of a defined code.
func ParseErrorCode(s string) (ErrorCode, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		c := ErrorCode(n)
		if !c.IsKnown() {
			return 0, fmt.Errorf("undefined error code: %d", n)
		}
		return c, nil
	}

	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for _, c := range codeOrder {
		if codeTable[c].name == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown error code name: %q", s)
}
