package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/content"
)

// CatResult is the cat command's JSON output.
type CatResult struct {
	Digest  string `json:"digest"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// NewCatCommand creates the cat command.
func NewCatCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <digest>",
		Short: "Print a file snapshot from the content store",
		Long: `Print the file content stored under a digest. Digests appear in
file_access.content_hash_before and content_hash_after, and in
"provcap show --verbose".

Examples:
  provcap cat 3f2a...
  provcap query "SELECT content_hash_after FROM file_access WHERE name = 'out.csv'"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			base, err := rootOpts.basePath(nil)
			if err != nil {
				return failFor(f, err)
			}
			ws, err := rootOpts.openWorkspace(cmd.Context(), cmd, base, true)
			if err != nil {
				return failFor(f, err)
			}
			defer ws.Close()

			cs, err := ws.store.Content()
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "content store unavailable", err))
			}
			data, err := cs.Retrieve(args[0])
			switch {
			case errors.Is(err, content.ErrNotFound), errors.Is(err, content.ErrInvalidDigest):
				return failFor(f, &ExitError{Code: ExitFailure, Err: err})
			case err != nil:
				return failFor(f, WrapExitError(ExitCommandError, "failed to read content", err))
			}

			result := CatResult{Digest: args[0], Size: len(data), Content: string(data)}
			return f.Render(result, func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		},
	}
}
