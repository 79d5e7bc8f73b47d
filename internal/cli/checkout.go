package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/store"
)

// NewCheckoutCommand creates the checkout command.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <trial>",
		Short: "Make a trial the parent of the next trial",
		Long: `Record a trial as the parent of the next trial saved in this
directory. Without a checkout, new trials descend from the latest one.

Examples:
  provcap checkout 0190f1c2-...`,
		Args:          cobra.ExactArgs(1),
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

			trial, err := ws.store.LoadTrial(ctx, args[0])
			if errors.Is(err, store.ErrTrialNotFound) {
				return failFor(f, &ExitError{Code: ExitFailure, Err: err})
			}
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to load trial", err))
			}
			if err := ws.store.WriteParentTrial(trial.ID); err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to write parent trial", err))
			}
			ws.logger.Info("parent trial set", "trial", trial.ID)

			result := map[string]string{"parent": trial.ID}
			return f.Render(result, func(w io.Writer) error {
				fmt.Fprintf(w, "Next trial will descend from %s\n", trial.ID)
				return nil
			})
		},
	}
}
