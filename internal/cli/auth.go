package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/codepocket/internal/apperror"
	"github.com/sakif/codepocket/internal/auth"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// NewAuthCommand groups the GitHub session commands.
func NewAuthCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Connect to or disconnect from GitHub",
	}
	cmd.AddCommand(newAuthTokenCommand(opts))
	cmd.AddCommand(newAuthLoginCommand(opts))
	cmd.AddCommand(newAuthStatusCommand(opts))
	cmd.AddCommand(newAuthLogoutCommand(opts))
	return cmd
}

func newAuthTokenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <github-token|->",
		Short: "Store a GitHub personal access token (gist scope)",
		Long: `Validate a GitHub personal access token with the "gist" scope and store it.
Pass "-" to read the token from stdin. If a backup Gist already exists it
is reconnected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			if token == "-" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return fmt.Errorf("reading token from stdin: %w", err)
				}
				token = line
			}
			return runAuthenticate(cmd, opts, token)
		},
	}
}

func newAuthLoginCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in through the GitHub device flow",
		Long: `Log in through the GitHub OAuth device flow. Requires github.client_id
(CODEPOCKET_GITHUB_CLIENT_ID) naming an OAuth App with device flow enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.GitHubClientID == "" {
				return apperror.ValidationFailed("github.client_id",
					"github.client_id is not set; use `codepocket auth token` instead")
			}

			c, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()

			device := auth.NewDeviceLogin(cfg.GitHubClientID)
			da, err := device.Start(c)
			if err != nil {
				return apperror.Transport("start device login", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Open %s and enter the code %s\n", da.VerificationURI, da.UserCode)

			token, err := device.Wait(c, da)
			if err != nil {
				return apperror.Auth("device login was not completed: " + err.Error())
			}
			return runAuthenticate(cmd, opts, token)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "how long to wait for approval")
	return cmd
}

func runAuthenticate(cmd *cobra.Command, opts *RootOptions, token string) error {
	app, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Engine.Authenticate(ctx(cmd), token)
	if err != nil {
		return err
	}

	login := "GitHub"
	if res.Account != nil && res.Account.Login != "" {
		login = res.Account.Login
	}
	p := newPrinter(cmd, opts)
	switch {
	case res.Reconnected:
		return p.result(res, "Connected as %s. Reconnected to backup Gist %s.", login, res.RemoteDocID)
	case res.RemoteDocID != "":
		return p.result(res, "Connected as %s. Using backup Gist %s.", login, res.RemoteDocID)
	default:
		return p.result(res, "Connected as %s. A backup Gist is created on the first push.", login)
	}
}

func newAuthStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the GitHub session and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.Engine.Status(ctx(cmd))
			if err != nil {
				return err
			}
			return newPrinter(cmd, opts).result(st, "%s", statusText(st))
		},
	}
}

func statusText(st *synceng.Status) string {
	var b strings.Builder
	if !st.Authenticated {
		b.WriteString("Not connected to GitHub.")
	} else {
		b.WriteString("Connected to GitHub.")
	}
	if st.HasGist {
		fmt.Fprintf(&b, "\nBackup Gist: %s", st.RemoteDocID)
	}
	if st.LastSync != nil {
		fmt.Fprintf(&b, "\nLast sync:   %s", st.LastSync.Local().Format(time.DateTime))
	} else {
		b.WriteString("\nLast sync:   never")
	}
	fmt.Fprintf(&b, "\nAuto-sync:   %s", onOff(st.AutoSyncEnabled))
	return b.String()
}

func newAuthLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the GitHub token and backup Gist (local snippets are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Engine.Disconnect(ctx(cmd)); err != nil {
				return err
			}
			return newPrinter(cmd, opts).result(map[string]bool{"authenticated": false}, "Disconnected from GitHub.")
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
