package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
)

var validate = validator.New()

// Validate checks struct tags first, then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	names := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if s == nil {
			return fmt.Errorf("services[%d]: empty service entry", i)
		}
		if names[s.Name] {
			return fmt.Errorf("services[%d]: duplicate service name %q", i, s.Name)
		}
		names[s.Name] = true

		if s.MinVersion != "" && !semver.IsValid(EnsureVPrefix(s.MinVersion)) {
			return fmt.Errorf("services[%d]: min_version %q is not a valid semantic version", i, s.MinVersion)
		}
	}

	return nil
}

// EnsureVPrefix ensures the version string has a "v" prefix for semver comparison.
func EnsureVPrefix(version string) string {
	if version != "" && version[0] != 'v' {
		return "v" + version
	}
	return version
}

// formatValidationError reports the first failing field with its tag.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			strings.TrimPrefix(e.Namespace(), "Config."), e.Tag(), e.Value())
	}
	return err
}
