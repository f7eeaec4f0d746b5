// Package main provides the entry point for the urlvet CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExitError carries a process exit status that is not 1.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string {
	return e.Msg
}

// NewRootCmd creates the root command for urlvet.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urlvet",
		Short: "Judge whether a URL is legitimate or a phishing attempt",
		Long: `urlvet scores URLs for legitimacy.

Every URL is analysed in two phases. The offline phase inspects the URL
text itself: host, path, query and fragment. The online phase fetches the
page without following redirects and inspects the status, headers, TLS
certificate, cookies and body. Redirect targets and URLs embedded in the
query are queued and analysed the same way, up to five URLs per input.

Use --offline to keep every request on the local machine.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewRulesCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	os.Exit(run(NewRootCmd()))
}

// run executes cmd and returns the process exit status.
func run(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(cmd.ErrOrStderr(), err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
