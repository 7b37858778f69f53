package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// printer writes either indented JSON or a line of text.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) printer {
	return printer{w: cmd.OutOrStdout(), json: opts.Format == "json"}
}

// result prints v as JSON, or the formatted text line otherwise.
func (p printer) result(v any, format string, args ...any) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(p.w, format+"\n", args...)
	return err
}

// textf prints only in text mode. Use it for hints that would corrupt JSON.
func (p printer) textf(format string, args ...any) {
	if !p.json {
		fmt.Fprintf(p.w, format+"\n", args...)
	}
}
