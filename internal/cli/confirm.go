package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	synceng "github.com/sakif/codepocket/internal/sync"
)

// formConfirmer asks "merge or replace?" with an interactive huh form.
type formConfirmer struct {
	in  io.Reader
	out io.Writer
}

var _ synceng.Confirmer = (*formConfirmer)(nil)

// ConfirmMergeOrReplace shows the choice. Esc or Ctrl+C aborts the pull
// without touching local snippets.
func (f *formConfirmer) ConfirmMergeOrReplace(ctx context.Context, local, remote int) (synceng.Decision, error) {
	choice := synceng.Merge.String()
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("The backup holds %d snippets; you have %d locally.", remote, local)).
				Description("Merge adds backup-only snippets on top. Replace discards local snippets.").
				Options(
					huh.NewOption("Merge into local snippets", synceng.Merge.String()),
					huh.NewOption("Replace local snippets with the backup", synceng.Replace.String()),
					huh.NewOption("Cancel", synceng.Abort.String()),
				).
				Value(&choice),
		),
	).WithInput(f.in).WithOutput(f.out)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return synceng.Abort, nil
		}
		return synceng.Abort, fmt.Errorf("asking merge or replace: %w", err)
	}
	d, _ := synceng.ParseDecision(choice)
	return d, nil
}
