package classify

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

// messagePattern matches a lowercased error message, either by substring or,
// for tokens that also occur inside addresses and words, by expression.
type messagePattern struct {
	substr string
	re     *regexp.Regexp
	code   connresult.ErrorCode
}

func (p messagePattern) matches(lower string) bool {
	if p.re != nil {
		return p.re.MatchString(lower)
	}
	return strings.Contains(lower, p.substr)
}

func contains(substr string, code connresult.ErrorCode) messagePattern {
	return messagePattern{substr: substr, code: code}
}

// statusCode matches an HTTP status standing on its own, so "401" in
// "10.0.0.1:4011" or a dotted address does not count.
func statusCode(status string, code connresult.ErrorCode) messagePattern {
	return messagePattern{
		re:   regexp.MustCompile(`(?:^|[\s(\["'=])` + status + `(?:$|[\s)\]"',;:.])`),
		code: code,
	}
}

// messagePatterns map fragments of error text to codes.
// Order matters: more specific patterns must come before generic ones.
// For example, "i/o timeout" must be checked before "dial tcp" since
// dial timeouts appear as "dial tcp ...: i/o timeout", and "no such host"
// must be checked before "not found".
var messagePatterns = []messagePattern{
	contains("context canceled", connresult.Canceled),
	contains("operation was canceled", connresult.Canceled),
	contains("deadline exceeded", connresult.Timeout),
	contains("timeout", connresult.Timeout),
	contains("timed out", connresult.Timeout),
	contains("interrupted", connresult.Interrupted),
	contains("no such host", connresult.NetworkError),
	contains("host not found", connresult.NetworkError),
	contains("connection refused", connresult.NetworkError),
	contains("connection reset", connresult.NetworkError),
	contains("network is unreachable", connresult.NetworkError),
	contains("broken pipe", connresult.NetworkError),
	contains("unauthorized", connresult.SignInRequired),
	statusCode("401", connresult.SignInRequired),
	contains("invalid_token", connresult.SignInRequired),
	contains("token expired", connresult.SignInRequired),
	contains("login required", connresult.SignInRequired),
	contains("forbidden", connresult.LicenseCheckFailed),
	statusCode("403", connresult.LicenseCheckFailed),
	contains("license", connresult.LicenseCheckFailed),
	contains("not implemented", connresult.ApiUnavailable),
	contains("unsupported api", connresult.ApiUnavailable),
	statusCode("404", connresult.ApiUnavailable),
	contains("not found", connresult.ApiUnavailable),
	{re: regexp.MustCompile(`\beof\b`), code: connresult.NetworkError},
	contains("dial tcp", connresult.NetworkError),
}

// FromError maps an error returned by a connection attempt to an ErrorCode.
// Typed errors (context, net, syscall) take precedence over message text;
// anything unrecognized is an InternalError.
func FromError(err error) connresult.ErrorCode {
	if err == nil {
		return connresult.Success
	}

	switch {
	case errors.Is(err, context.Canceled):
		return connresult.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return connresult.Timeout
	case errors.Is(err, syscall.EINTR):
		return connresult.Interrupted
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return connresult.NetworkError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return connresult.Timeout
		}
		return connresult.NetworkError
	}

	return FromMessage(err.Error())
}

// FromMessage classifies free-form error text, such as a last error reported
// by a remote client.
func FromMessage(msg string) connresult.ErrorCode {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return connresult.Success
	}

	lower := strings.ToLower(msg)
	for _, p := range messagePatterns {
		if p.matches(lower) {
			return p.code
		}
	}
	return connresult.InternalError
}
