package output

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// TableFormatter formats output as a human-readable table.
type TableFormatter struct {
	Condensed bool // Plain output even on a terminal
}

// Format renders Tabular values as a table and anything else as indented
// JSON.
func (f *TableFormatter) Format(data interface{}) (string, error) {
	if t, ok := data.(Tabular); ok {
		return f.FormatTable(t.Headers(), t.Rows())
	}
	return (&JSONFormatter{Indent: true}).Format(data)
}

// FormatError renders an error in human-readable format.
func (f *TableFormatter) FormatError(err StructuredError) (string, error) {
	var buf bytes.Buffer

	if f.Condensed || !f.isTTY() {
		fmt.Fprintf(&buf, "Error: %s\n", err.Message)
	} else {
		rule := strings.Repeat("=", 60)
		fmt.Fprintf(&buf, "%s\nError [%s]\n%s\n\n%s\n", rule, err.Code, rule, err.Message)
	}

	if err.Guidance != "" {
		fmt.Fprintf(&buf, "  Guidance: %s\n", err.Guidance)
	}
	if err.RecoveryCommand != "" {
		fmt.Fprintf(&buf, "  Try: %s\n", err.RecoveryCommand)
	}
	return buf.String(), nil
}

// FormatTable renders tabular data with headers and alignment.
func (f *TableFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "No results found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	if !f.Condensed && f.isTTY() {
		separators := make([]string, len(headers))
		for i := range separators {
			separators[i] = strings.Repeat("-", len(headers[i]))
		}
		fmt.Fprintln(w, strings.Join(separators, "\t"))
	}

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// isTTY checks if stdout is a terminal.
func (f *TableFormatter) isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
