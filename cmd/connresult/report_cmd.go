package main

import (
	"github.com/spf13/cobra"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
)

type reportOptions struct {
	installedVersion string
	account          string
	lastError        string
	signedIn         bool
	licensed         bool
	disabled         bool
	signatureInvalid bool
	needsResolution  bool
}

// reportView renders a classification as a key/value table.
type reportView contracts.ReportResponse

func (r reportView) Headers() []string { return []string{"FIELD", "VALUE"} }

func (r reportView) Rows() [][]string {
	rows := [][]string{
		{"service", r.Service},
		{"error_code", r.Result.ErrorName},
		{"recoverability", r.Result.Recoverability},
		{"summary", r.Summary},
	}
	if r.Detail != "" {
		rows = append(rows, []string{"detail", r.Detail})
	}
	if r.Token != "" {
		rows = append(rows,
			[]string{"action", r.Result.Action},
			[]string{"token", r.Token})
	}
	return rows
}

func newReportCommand() *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report <service>",
		Short: "Classify a failed connection attempt",
		Long: `Send what a client observed while connecting to a service and print the
resulting error code. Recoverable failures come back with a resolution token
that 'connresult resolutions start' launches.

Examples:
  # A signed-out client
  connresult report drive --installed-version 2.4.0 --signed-in=false

  # Classify from a raw transport error
  connresult report drive --last-error "connection refused"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts.toReport(cmd, args[0]))
		},
	}

	cmd.Flags().StringVar(&opts.installedVersion, "installed-version", "", "Installed service version (empty when not installed)")
	cmd.Flags().StringVar(&opts.account, "account", "", "Account the client tried to use")
	cmd.Flags().StringVar(&opts.lastError, "last-error", "", "Transport or API error text")
	cmd.Flags().BoolVar(&opts.signedIn, "signed-in", false, "Whether the account is signed in (omit if unknown)")
	cmd.Flags().BoolVar(&opts.licensed, "licensed", false, "Whether the account is licensed (omit if unknown)")
	cmd.Flags().BoolVar(&opts.disabled, "disabled", false, "The service is disabled on this device")
	cmd.Flags().BoolVar(&opts.signatureInvalid, "signature-invalid", false, "The installed service failed signature checks")
	cmd.Flags().BoolVar(&opts.needsResolution, "needs-resolution", false, "The service asked for another interactive step")

	return cmd
}

// toReport builds the report; tri-state checks are only set when their flag
// was given.
func (o *reportOptions) toReport(cmd *cobra.Command, service string) classify.Report {
	report := classify.Report{
		Service:          service,
		InstalledVersion: o.installedVersion,
		SignatureInvalid: o.signatureInvalid,
		Disabled:         o.disabled,
		Account:          o.account,
		NeedsResolution:  o.needsResolution,
		LastError:        o.lastError,
	}
	if cmd.Flags().Changed("signed-in") {
		signedIn := o.signedIn
		report.SignedIn = &signedIn
	}
	if cmd.Flags().Changed("licensed") {
		licensed := o.licensed
		report.Licensed = &licensed
	}
	return report
}

func runReport(cmd *cobra.Command, report classify.Report) error {
	client, err := getClient(cmd)
	if err != nil {
		return err
	}
	resp, err := client.Report(commandContext(cmd), report)
	if err != nil {
		return err
	}
	return printResult(cmd, reportView(*resp))
}
