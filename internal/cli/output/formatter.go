// Package output provides unified output formatting for CLI commands.
// It supports multiple output formats (table, JSON, YAML) and structured errors.
package output

import (
	"fmt"
	"os"
	"strings"
)

// EnvOutputFormat selects the default format when no flag is given.
const EnvOutputFormat = "CONNRESULT_OUTPUT"

// Formatter formats structured data for CLI output.
// Implementations are stateless and safe for concurrent use.
type Formatter interface {
	// Format converts data to formatted output. Table output renders
	// Tabular values as tables.
	Format(data interface{}) (string, error)

	// FormatError converts a structured error to formatted output.
	FormatError(err StructuredError) (string, error)

	// FormatTable formats tabular data with headers.
	FormatTable(headers []string, rows [][]string) (string, error)
}

// Tabular is implemented by values with a natural table rendering.
type Tabular interface {
	Headers() []string
	Rows() [][]string
}

// NewFormatter creates a formatter for the specified format.
// Supported formats: table, json, yaml (case-insensitive).
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{Indent: true}, nil
	case "yaml":
		return &YAMLFormatter{}, nil
	case "table", "":
		return &TableFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s (valid: table, json, yaml)", format)
	}
}

// ResolveFormat determines the output format from flags and environment.
// Priority: --json alias > explicit flag > CONNRESULT_OUTPUT > table.
func ResolveFormat(outputFlag string, jsonFlag bool) string {
	if jsonFlag {
		return "json"
	}
	if outputFlag != "" {
		return outputFlag
	}
	if envFormat := os.Getenv(EnvOutputFormat); envFormat != "" {
		return envFormat
	}
	return "table"
}

// rowsToMaps turns table rows into header-keyed objects for JSON and YAML.
func rowsToMaps(headers []string, rows [][]string) []map[string]string {
	result := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				obj[header] = row[i]
			} else {
				obj[header] = ""
			}
		}
		result = append(result, obj)
	}
	return result
}
