// Package classify decides which ErrorCode applies to a connection attempt.
package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/smart-mcp-proxy/connresult/internal/config"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

// Report is what a client observed while trying to connect to a service.
// Optional checks use pointers; nil means the check was not performed.
type Report struct {
	Service string `json:"service"`

	// Installation state
	InstalledVersion string `json:"installed_version,omitempty"` // empty when not installed
	SignatureInvalid bool   `json:"signature_invalid,omitempty"`
	Disabled         bool   `json:"disabled,omitempty"`

	// Account state
	Account  string `json:"account,omitempty"`
	SignedIn *bool  `json:"signed_in,omitempty"`
	Licensed *bool  `json:"licensed,omitempty"`

	// NeedsResolution is set when the service asked for some other
	// interactive step before it will accept connections.
	NeedsResolution bool `json:"needs_resolution,omitempty"`

	// LastError is the transport or API error text, if any.
	LastError string `json:"last_error,omitempty"`
}

// Verdict is the outcome of evaluating a Report.
type Verdict struct {
	Code    connresult.ErrorCode `json:"error_code"`
	Summary string               `json:"summary"`
	Detail  string               `json:"detail,omitempty"`
}

// Evaluate picks the code for a report using a priority-based approach:
// configuration first, then installation and version, then admin state,
// then account checks, then the transport error. The first failing check
// wins, so a client is only ever asked to fix one thing at a time.
func Evaluate(report Report, svc *config.ServiceConfig) Verdict {
	// 1. Unknown service means the client is asking for something that
	// was never configured.
	if svc == nil {
		return Verdict{
			Code:    connresult.DeveloperError,
			Summary: "Unknown service",
			Detail:  fmt.Sprintf("service %q is not configured", report.Service),
		}
	}

	// 2. Installation and version gate
	if code := CheckVersion(report.InstalledVersion, svc.MinVersion); code != connresult.Success {
		return versionVerdict(code, report.InstalledVersion, svc.MinVersion)
	}
	if report.SignatureInvalid {
		return Verdict{
			Code:    connresult.ServiceInvalid,
			Summary: "Service signature invalid",
		}
	}

	// 3. Admin state
	if report.Disabled || !svc.Enabled {
		return Verdict{
			Code:    connresult.ServiceDisabled,
			Summary: "Disabled",
		}
	}

	// 4. Account state
	if report.Account != "" && !svc.AllowsAccount(report.Account) {
		return Verdict{
			Code:    connresult.InvalidAccount,
			Summary: "Account not allowed",
			Detail:  report.Account,
		}
	}
	if report.SignedIn != nil && !*report.SignedIn {
		return Verdict{
			Code:    connresult.SignInRequired,
			Summary: "Sign-in required",
		}
	}
	if report.Licensed != nil && !*report.Licensed {
		return Verdict{
			Code:    connresult.LicenseCheckFailed,
			Summary: "License check failed",
		}
	}
	if report.NeedsResolution {
		return Verdict{
			Code:    connresult.ResolutionRequired,
			Summary: "Resolution required",
		}
	}

	// 5. Transport error
	if code := FromMessage(report.LastError); code != connresult.Success {
		return Verdict{
			Code:    code,
			Summary: formatErrorSummary(report.LastError),
			Detail:  report.LastError,
		}
	}

	return Verdict{
		Code:    connresult.Success,
		Summary: "Connected",
	}
}

func versionVerdict(code connresult.ErrorCode, installed, minimum string) Verdict {
	switch code {
	case connresult.ServiceMissing:
		return Verdict{Code: code, Summary: "Not installed"}
	case connresult.ServiceInvalid:
		return Verdict{Code: code, Summary: "Invalid version", Detail: installed}
	default:
		return Verdict{
			Code:    code,
			Summary: "Update required",
			Detail:  fmt.Sprintf("installed %s, requires %s", installed, minimum),
		}
	}
}

// formatErrorSummary turns an error message into a short summary.
// Long errors are truncated on a rune boundary.
func formatErrorSummary(lastError string) string {
	errorMappings := []struct {
		pattern  string
		friendly string
	}{
		{"no such host", "Host not found"},
		{"connection refused", "Connection refused"},
		{"connection reset", "Connection reset"},
		{"timeout", "Connection timeout"},
		{"unauthorized", "Unauthorized"},
		{"forbidden", "Access forbidden"},
		{"dial tcp", "Cannot connect"},
	}

	lower := strings.ToLower(lastError)
	for _, mapping := range errorMappings {
		if strings.Contains(lower, mapping.pattern) {
			return mapping.friendly
		}
	}

	if utf8.RuneCountInString(lastError) > 50 {
		return string([]rune(lastError)[:47]) + "..."
	}
	return lastError
}
