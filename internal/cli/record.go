package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/harness"
)

// RecordResult is the record command's output.
type RecordResult struct {
	Fixture  string   `json:"fixture"`
	Trial    string   `json:"trial"`
	Status   string   `json:"status"`
	Parent   string   `json:"parent,omitempty"`
	Calls    int      `json:"calls"`
	Warnings []string `json:"warnings"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	var trialID string

	cmd := &cobra.Command{
		Use:   "record <fixture.yaml>",
		Short: "Record a fixture trial into the provenance store",
		Long: `Play a YAML fixture (a synthetic call tree with file accesses) into
the provenance store as a new trial. The store is created if needed.

Fixture files are written into the base path before the trial runs.
Capture integrity problems, such as a slice stack left unbalanced,
are reported as warnings and do not fail the recording.

Examples:
  provcap record testdata/fixtures/pipeline.yaml
  provcap record pipeline.yaml --trial rerun-2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			fx, err := harness.LoadFixture(args[0])
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to load fixture", err))
			}
			if trialID != "" {
				fx.TrialID = trialID
			}

			base, err := rootOpts.basePath(nil)
			if err != nil {
				return failFor(f, err)
			}
			ws, err := rootOpts.openWorkspace(ctx, cmd, base, false)
			if err != nil {
				return failFor(f, err)
			}
			defer ws.Close()

			rec, err := harness.Record(ctx, ws.store, fx, ws.logger)
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to record fixture", err))
			}

			result := RecordResult{
				Fixture:  fx.Name,
				Trial:    rec.Trial.ID,
				Status:   rec.Trial.Status,
				Calls:    rec.Root.Count(),
				Warnings: rec.Warnings,
			}
			if result.Warnings == nil {
				result.Warnings = []string{}
			}
			if rec.Trial.ParentID != nil {
				result.Parent = *rec.Trial.ParentID
			}

			return f.Render(result, func(w io.Writer) error {
				fmt.Fprintf(w, "Recorded trial %s (%s, %d calls)\n", result.Trial, result.Status, result.Calls)
				if result.Parent != "" {
					fmt.Fprintf(w, "Parent: %s\n", result.Parent)
				}
				for _, warning := range result.Warnings {
					fmt.Fprintf(w, "Warning: %s\n", warning)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&trialID, "trial", "", "trial id (default: fixture-<name>)")
	return cmd
}
