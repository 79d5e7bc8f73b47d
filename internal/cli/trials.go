package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/ir"
)

// NewTrialsCommand creates the trials command.
func NewTrialsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trials",
		Short: "List recorded trials",
		Long: `List the trials of the provenance store, oldest first.

Examples:
  provcap trials
  provcap trials --dir ./experiment --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			base, err := rootOpts.basePath(nil)
			if err != nil {
				return failFor(f, err)
			}
			ws, err := rootOpts.openWorkspace(ctx, cmd, base, true)
			if err != nil {
				return failFor(f, err)
			}
			defer ws.Close()

			trials, err := ws.store.Trials(ctx)
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to list trials", err))
			}

			rows := make([]ir.Row, 0, len(trials))
			for _, t := range trials {
				rows = append(rows, t.ToDict(nil, []string{"duration"}))
			}

			return f.Render(rows, func(w io.Writer) error {
				if len(trials) == 0 {
					fmt.Fprintln(w, "No trials recorded")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tSTART\tDURATION\tPARENT\tSCRIPT")
				for _, t := range trials {
					duration := "-"
					if t.Finish != nil {
						duration = t.Finish.Sub(t.Start).String()
					}
					parent := "-"
					if t.ParentID != nil {
						parent = *t.ParentID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.Status, t.Start.Format(time.DateTime), duration, parent, t.Script)
				}
				return tw.Flush()
			})
		},
	}
}
