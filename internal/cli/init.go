package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/config"
)

// InitResult is the init command's output.
type InitResult struct {
	Base          string `json:"base"`
	Database      string `json:"database"`
	Created       bool   `json:"created"`
	ConfigWritten bool   `json:"config_written"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var noConfig bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a provenance store",
		Long: `Create the provenance directory, content store and database in the
base path, and write a default provcap.yaml next to them.

Running init on an existing store is safe: the schema is only created
when the database is new and an existing provcap.yaml is kept.

Examples:
  provcap init
  provcap init ./experiment
  provcap init --no-config --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			base, err := rootOpts.basePath(args)
			if err != nil {
				return failFor(f, err)
			}

			written := false
			if !noConfig {
				if written, err = config.WriteDefault(base); err != nil {
					return failFor(f, WrapExitError(ExitCommandError, "failed to write config", err))
				}
			}

			ws, err := rootOpts.openWorkspace(cmd.Context(), cmd, base, false)
			if err != nil {
				return failFor(f, err)
			}
			defer ws.Close()

			result := InitResult{
				Base:          base,
				Database:      ws.store.Layout().DatabasePath,
				Created:       ws.store.Created(),
				ConfigWritten: written,
			}
			return f.Render(result, func(w io.Writer) error {
				if result.Created {
					fmt.Fprintf(w, "Initialized provenance store in %s\n", result.Base)
				} else {
					fmt.Fprintf(w, "Provenance store already exists in %s\n", result.Base)
				}
				if result.ConfigWritten {
					fmt.Fprintln(w, "Wrote default provcap.yaml")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noConfig, "no-config", false, "do not write provcap.yaml")
	return cmd
}
