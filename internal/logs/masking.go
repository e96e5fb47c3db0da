package logs

import (
	"net/url"
	"strings"
)

// MaskSecret shows the first 3 and last 4 characters of a secret.
// Secrets of 8 characters or fewer become "***".
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:3] + "***" + secret[len(secret)-4:]
}

// MaskTarget masks query parameters of a resolution target URL that likely
// carry credentials, so the target can be logged. Values that do not parse as
// URLs are returned unchanged.
func MaskTarget(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.RawQuery == "" {
		return target
	}

	q := u.Query()
	changed := false
	for key, values := range q {
		if !containsSensitiveKeyword(key) {
			continue
		}
		for i := range values {
			values[i] = MaskSecret(values[i])
		}
		q[key] = values
		changed = true
	}
	if !changed {
		return target
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// containsSensitiveKeyword checks if a parameter key likely contains sensitive data
func containsSensitiveKeyword(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range []string{"key", "secret", "token", "password", "credential", "code"} {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
