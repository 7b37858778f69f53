package cli

import (
	"github.com/spf13/cobra"

	"github.com/sakif/codepocket/internal/apperror"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// NewPushCommand uploads the local collection.
func NewPushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload all local snippets to the backup Gist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Engine.Upload(ctx(cmd))
			if err != nil {
				return err
			}
			return newPrinter(cmd, opts).result(res,
				"Uploaded %d snippets to %s", res.Count, res.RemoteURL)
		},
	}
}

// NewPullCommand downloads the backup and merges or replaces.
func NewPullCommand(opts *RootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the backup Gist into the local collection",
		Long: `Download the backup Gist. With --mode merge, snippets that exist only in the
backup are added on top and local snippets win on conflicts. With --mode
replace, the local collection becomes exactly the backup. Without --mode
you are asked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirmer := opts.confirmer
			if mode != "" {
				d, ok := synceng.ParseDecision(mode)
				if !ok {
					return apperror.ValidationFailed("mode", `--mode must be "merge" or "replace"`)
				}
				confirmer = synceng.StaticDecision(d)
			}
			if confirmer == nil {
				if opts.Format == "json" {
					return apperror.ValidationFailed("mode", "--mode is required with --format json")
				}
				confirmer = &formConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
			}

			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Engine.Pull(ctx(cmd), confirmer)
			if err != nil {
				return err
			}

			p := newPrinter(cmd, opts)
			switch {
			case res.Empty:
				return p.result(res, "The backup Gist has no snippets; nothing changed.")
			case res.Decision == synceng.Abort:
				return p.result(res, "Pull cancelled; nothing changed.")
			case res.Decision == synceng.Merge:
				return p.result(res, "Merged: %d new snippets, %d total.", res.Added, res.Total)
			default:
				return p.result(res, "Replaced local snippets with %d from the backup.", res.Total)
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "merge or replace (asks when empty)")
	return cmd
}

// NewAutoSyncCommand shows or sets the auto-sync toggle.
func NewAutoSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "autosync [on|off]",
		Short:     "Show or set automatic upload after local changes",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				if err := app.Engine.SetAutoSync(ctx(cmd), args[0] == "on"); err != nil {
					return err
				}
			}
			enabled, err := app.Engine.AutoSyncEnabled(ctx(cmd))
			if err != nil {
				return err
			}
			return newPrinter(cmd, opts).result(map[string]bool{"enabled": enabled},
				"Auto-sync is %s.", onOff(enabled))
		},
	}
}
