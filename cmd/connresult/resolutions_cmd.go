package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/connresult/internal/cli/output"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
	"github.com/smart-mcp-proxy/connresult/internal/logs"
)

// resolutionList renders resolutions as a table.
type resolutionList []contracts.Resolution

func (l resolutionList) Headers() []string {
	return []string{"TOKEN", "SERVICE", "CODE", "STATE", "REQUEST", "EXPIRES"}
}

func (l resolutionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		request := "-"
		if r.RequestID != 0 {
			request = strconv.Itoa(r.RequestID)
		}
		rows = append(rows, []string{
			r.Token,
			r.Service,
			r.CodeName,
			r.State,
			request,
			r.ExpiresAt.Local().Format(time.RFC3339),
		})
	}
	return rows
}

// resolutionDetail renders one resolution as a key/value table.
type resolutionDetail contracts.Resolution

func (d resolutionDetail) Headers() []string { return []string{"FIELD", "VALUE"} }

func (d resolutionDetail) Rows() [][]string {
	rows := [][]string{
		{"token", d.Token},
		{"service", d.Service},
		{"error_code", d.CodeName + " (" + strconv.Itoa(d.Code) + ")"},
		{"action", d.Action},
		{"target", logs.MaskTarget(d.Target)},
		{"state", d.State},
		{"attempts", strconv.Itoa(d.Attempts)},
		{"created", d.Created.Local().Format(time.RFC3339)},
		{"expires_at", d.ExpiresAt.Local().Format(time.RFC3339)},
	}
	if d.RequestID != 0 {
		rows = append(rows, []string{"request_id", strconv.Itoa(d.RequestID)})
	}
	if d.ResultCode != nil {
		rows = append(rows,
			[]string{"result_code", strconv.Itoa(*d.ResultCode)},
			[]string{"retry", strconv.FormatBool(d.Retry)})
	}
	if d.LastError != "" {
		rows = append(rows, []string{"last_error", d.LastError})
	}
	return rows
}

func newResolutionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resolutions",
		Aliases: []string{"res"},
		Short:   "Inspect, start and cancel issued resolutions",
	}

	cmd.AddCommand(newResolutionsListCommand())
	cmd.AddCommand(newResolutionsShowCommand())
	cmd.AddCommand(newResolutionsStartCommand())
	cmd.AddCommand(newResolutionsCancelCommand())
	return cmd
}

func newResolutionsListCommand() *cobra.Command {
	var state, service string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issued resolutions",
		Long: `List issued resolutions, newest first.

Examples:
  # Everything still waiting to be started
  connresult resolutions list --state pending

  # Resolutions for one service as JSON
  connresult resolutions list --service drive --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := getClient(cmd)
			if err != nil {
				return err
			}
			list, err := client.ListResolutions(commandContext(cmd), state, service)
			if err != nil {
				return err
			}
			return printResult(cmd, resolutionList(list))
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Filter by state: pending, dispatching, dispatched, completed, canceled, expired")
	cmd.Flags().StringVarP(&service, "service", "s", "", "Filter by service name")
	return cmd
}

func newResolutionsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Show one resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.GetResolution(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, resolutionDetail(*res))
		},
	}
}

func newResolutionsStartCommand() *cobra.Command {
	var requestID int
	cmd := &cobra.Command{
		Use:   "start <token>",
		Short: "Launch the interactive flow of a resolution",
		Long: `Launch the interactive flow of a pending resolution on the daemon's host.
A resolution can be started once; the flow reports back through
'connresult complete' with the same request ID.

Examples:
  connresult resolutions start 01HZX3K9 --request-id 1001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID <= 0 {
				return output.NewStructuredError(output.ErrCodeInvalidInput, "--request-id must be a positive integer")
			}
			client, err := getClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.StartResolution(commandContext(cmd), args[0], requestID)
			if err != nil {
				return err
			}
			return printResult(cmd, resolutionDetail(*res))
		},
	}
	cmd.Flags().IntVar(&requestID, "request-id", 0, "Caller-chosen ID echoed back on completion")
	_ = cmd.MarkFlagRequired("request-id")
	return cmd
}

func newResolutionsCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <token>",
		Short: "Invalidate a pending resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.CancelResolution(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, resolutionDetail(*res))
		},
	}
}
