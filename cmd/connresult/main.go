package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile   string
	dataDir      string
	listen       string
	logLevel     string
	logToFile    bool
	logDir       string
	endpoint     string
	outputFormat string
	jsonOutput   bool

	version = "v0.1.0" // This will be injected by -ldflags during build
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "connresult",
		Short: "Connection result daemon - classifies failed service connections and runs their resolutions",
		Long: `connresult classifies why a client could not connect to a background
service, issues a one-shot resolution for recoverable failures and launches
the matching interactive flow (sign in, install, update, enable) on request.

Run 'connresult serve' to start the daemon; the other commands talk to it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.connresult)")
	rootCmd.PersistentFlags().StringVarP(&listen, "listen", "l", "", "Listen address (default: 127.0.0.1:8095)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file in standard OS location")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Daemon API endpoint (default: derived from the listen address)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Shorthand for -o json")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCodesCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newResolutionsCommand())
	rootCmd.AddCommand(newCompleteCommand())

	return rootCmd
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd, err)
		os.Exit(exitCodeFor(err))
	}
}

// printError writes err to stderr in the selected output format.
func printError(cmd *cobra.Command, err error) {
	formatter, fmtErr := getOutputFormatter()
	if fmtErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return
	}
	out, fmtErr := formatter.FormatError(toStructuredError(err))
	if fmtErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return
	}
	fmt.Fprint(cmd.ErrOrStderr(), out)
}
