package classify

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

// CheckVersion gates an installed service version against the minimum the
// client accepts. Versions may omit the leading "v".
//
//	installed empty        -> ServiceMissing
//	installed not semver   -> ServiceInvalid
//	installed < minimum    -> ServiceVersionUpdateRequired
//
// An empty or invalid minimum disables the gate.
func CheckVersion(installed, minimum string) connresult.ErrorCode {
	installed = strings.TrimSpace(installed)
	if installed == "" {
		return connresult.ServiceMissing
	}

	current := ensureVPrefix(installed)
	if !semver.IsValid(current) {
		return connresult.ServiceInvalid
	}

	required := ensureVPrefix(strings.TrimSpace(minimum))
	if required == "" || !semver.IsValid(required) {
		return connresult.Success
	}

	if semver.Compare(current, required) < 0 {
		return connresult.ServiceVersionUpdateRequired
	}
	return connresult.Success
}

// ensureVPrefix ensures the version string has a "v" prefix for semver comparison.
func ensureVPrefix(version string) string {
	if version == "" || strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
