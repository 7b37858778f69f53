package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/codepocket/internal/service"
)

// NewSnippetsCommand groups local collection commands.
func NewSnippetsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snippets",
		Aliases: []string{"s"},
		Short:   "List, import and export local snippets",
	}
	cmd.AddCommand(newSnippetsListCommand(opts))
	cmd.AddCommand(newSnippetsImportCommand(opts))
	cmd.AddCommand(newSnippetsExportCommand(opts))
	return cmd
}

func newSnippetsListCommand(opts *RootOptions) *cobra.Command {
	var f service.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snippets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			snippets, err := app.Service.List(ctx(cmd), f)
			if err != nil {
				return err
			}
			p := newPrinter(cmd, opts)
			if p.json {
				return p.result(snippets, "")
			}
			if len(snippets) == 0 {
				p.textf("No snippets.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLANGUAGE\tTITLE\tTAGS")
			for _, s := range snippets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Language, s.Title, strings.Join(s.Tags, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "match title, description, code or tags")
	cmd.Flags().StringVarP(&f.Language, "language", "l", "", "only this language")
	return cmd
}

func newSnippetsImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import snippets from a JSON export, then sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Service.Import(ctx(cmd), data)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Imported %d snippets", res.Imported)
			if res.Skipped > 0 {
				msg += fmt.Sprintf(" (%d skipped)", res.Skipped)
			}
			switch {
			case res.SyncError != "":
				msg += ". Sync failed: " + res.SyncError
			default:
				msg += ". Sync: " + string(res.Sync) + "."
			}
			return newPrinter(cmd, opts).result(res, "%s", msg)
		},
	}
}

func newSnippetsExportCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all snippets as a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			data, err := app.Service.Export(ctx(cmd))
			if err != nil {
				return err
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if out == "" {
				out = service.ExportFileName(time.Now())
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			return newPrinter(cmd, opts).result(map[string]string{"file": out}, "Exported to %s", out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", `output file, "-" for stdout (default code-snippets-<date>.json)`)
	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
