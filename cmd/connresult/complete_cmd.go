package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/connresult/internal/cli/output"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
)

// completionView renders a completion as a key/value table.
type completionView contracts.CompletionResponse

func (c completionView) Headers() []string { return []string{"FIELD", "VALUE"} }

func (c completionView) Rows() [][]string {
	return [][]string{
		{"token", c.Token},
		{"service", c.Service},
		{"request_id", strconv.Itoa(c.RequestID)},
		{"result_code", strconv.Itoa(c.ResultCode)},
		{"retry", strconv.FormatBool(c.Retry)},
	}
}

// parseResultCode accepts "ok", "canceled" or a decimal result code.
func parseResultCode(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok":
		return connresult.ResultOK, nil
	case "canceled", "cancelled":
		return connresult.ResultCanceled, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid result %q: use ok, canceled or an integer code", s)
	}
	return n, nil
}

func newCompleteCommand() *cobra.Command {
	var (
		requestID int
		result    string
	)
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Report the result of a finished interactive flow",
		Long: `Deliver the result code of an interactive flow to the daemon. "ok" means
the flow succeeded and the connection should be retried; "canceled" means
the user backed out. Other integers are flow-specific failure codes.

Examples:
  connresult complete --request-id 1001 --result ok
  connresult complete --request-id 1001 --result canceled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := parseResultCode(result)
			if err != nil {
				return output.NewStructuredError(output.ErrCodeInvalidInput, err.Error())
			}
			client, err := getClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.Complete(commandContext(cmd), requestID, code)
			if err != nil {
				return err
			}
			return printResult(cmd, completionView(*resp))
		},
	}
	cmd.Flags().IntVar(&requestID, "request-id", 0, "Request ID the flow was started with")
	cmd.Flags().StringVar(&result, "result", "ok", "Result: ok, canceled or an integer code")
	_ = cmd.MarkFlagRequired("request-id")
	return cmd
}
