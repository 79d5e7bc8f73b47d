package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/content"
)

// StatusResult is the status command's output.
type StatusResult struct {
	Base        string `json:"base"`
	Database    string `json:"database"`
	ConfigFile  string `json:"config_file,omitempty"`
	Hash        string `json:"hash"`
	Trials      int    `json:"trials"`
	Latest      string `json:"latest,omitempty"`
	LatestState string `json:"latest_status,omitempty"`
	Parent      string `json:"parent,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Show the provenance store of a directory",
		Long: `Show where the provenance store lives, how many trials it holds,
the latest trial and the parent the next trial will record.

Fails with exit code 1 when the directory has no provenance store;
nothing is created in that case.

Examples:
  provcap status
  provcap status ./experiment --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := rootOpts.formatter(cmd)

			base, err := rootOpts.basePath(args)
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
			parent, err := ws.store.ReadParentTrial()
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to read parent trial", err))
			}

			result := StatusResult{
				Base:       base,
				Database:   ws.store.Layout().DatabasePath,
				ConfigFile: ws.cfg.File,
				Hash:       ws.cfg.Hash,
				Trials:     len(trials),
				Parent:     parent,
			}
			if result.Hash == "" {
				result.Hash = content.Blake3.Name()
			}
			if n := len(trials); n > 0 {
				result.Latest = trials[n-1].ID
				result.LatestState = trials[n-1].Status
			}

			return f.Render(result, func(w io.Writer) error {
				fmt.Fprintf(w, "Base:     %s\n", result.Base)
				fmt.Fprintf(w, "Database: %s\n", result.Database)
				if result.ConfigFile != "" {
					fmt.Fprintf(w, "Config:   %s\n", result.ConfigFile)
				}
				fmt.Fprintf(w, "Hash:     %s\n", result.Hash)
				fmt.Fprintf(w, "Trials:   %d\n", result.Trials)
				if result.Latest != "" {
					fmt.Fprintf(w, "Latest:   %s (%s)\n", result.Latest, result.LatestState)
				}
				if result.Parent != "" {
					fmt.Fprintf(w, "Parent:   %s\n", result.Parent)
				}
				return nil
			})
		},
	}
}
