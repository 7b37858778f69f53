// Package cli is the codepocket command line: the composition root for the
// local API server and one-shot commands for auth, sync and snippets.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/config"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// Exit codes.
const (
	ExitSuccess  = 0
	ExitFailure  = 1 // anything not listed below
	ExitUsage    = 2 // validation errors, bad flags
	ExitAuth     = 3 // missing or rejected GitHub token
	ExitRemote   = 4 // GitHub errors, unreadable backup
	ExitNotFound = 5
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Format     string // "json" | "text"

	v *viper.Viper
	// confirmer answers pull prompts; nil means an interactive huh form.
	confirmer synceng.Confirmer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the codepocket CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.v == nil {
		opts.v = config.New()
	}

	cmd := &cobra.Command{
		Use:   "codepocket",
		Short: "Code snippets, backed up to a private GitHub Gist",
		Long: `codepocket keeps a local collection of code snippets and mirrors it to a
private GitHub Gist. Local edits are pushed automatically; pulls ask
whether to merge the backup into the local collection or replace it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return apperror.ValidationFailed("format",
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default: codepocket.yaml in the data dir or .)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.String("data-dir", "", "directory for the database and config")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	opts.v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	opts.v.BindPFlag("log.level", pf.Lookup("log-level"))

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewAutoSyncCommand(opts))
	cmd.AddCommand(NewSnippetsCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", message(err))
		return ExitCode(err)
	}
	return ExitSuccess
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, apperror.ErrValidation):
		return ExitUsage
	case errors.Is(err, apperror.ErrAuth):
		return ExitAuth
	case errors.Is(err, apperror.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, apperror.ErrRemote), errors.Is(err, apperror.ErrParse):
		return ExitRemote
	default:
		return ExitFailure
	}
}

// message prefers the user-facing AppError message over the full chain.
func message(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Cause == nil {
		return appErr.Message
	}
	return err.Error()
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
