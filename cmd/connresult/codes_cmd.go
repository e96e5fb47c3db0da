package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/connresult/internal/cli/output"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
)

// codeList renders the taxonomy as a table.
type codeList []contracts.CodeInfo

func (c codeList) Headers() []string {
	return []string{"CODE", "NAME", "RECOVERABILITY", "ACTION", "DESCRIPTION"}
}

func (c codeList) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, info := range c {
		name := info.Name
		if info.Deprecated {
			name += " (deprecated)"
		}
		action := info.Action
		if action == "" {
			action = "-"
		}
		rows = append(rows, []string{strconv.Itoa(info.Code), name, info.Recoverability, action, info.Description})
	}
	return rows
}

func newCodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "codes [code]",
		Short: "List the connection error codes",
		Long: `List every connection error code with its recoverability and the
interactive action that resolves it. Runs locally; no daemon is needed.

Examples:
  # Show the whole taxonomy
  connresult codes

  # Look up one code by number or name
  connresult codes 4
  connresult codes sign-in-required -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCodes,
	}
}

func runCodes(cmd *cobra.Command, args []string) error {
	codes := connresult.Codes()
	if len(args) == 1 {
		code, err := connresult.ParseErrorCode(args[0])
		if err != nil {
			return output.NewStructuredError(output.ErrCodeInvalidInput, err.Error()).
				WithRecoveryCommand("connresult codes")
		}
		codes = []connresult.ErrorCode{code}
	}
	return printResult(cmd, codeList(contracts.ConvertCodes(codes)))
}
