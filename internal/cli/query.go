package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/ir"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run SQL against the provenance database",
		Long: `Run a SQL statement against the provenance database and print its
rows. Columns keep the order the statement declares.

Tables: trial, function_activation, object_value, file_access,
variable_binding.

Examples:
  provcap query "SELECT id, status FROM trial"
  provcap query "SELECT name, finish_ns - start_ns AS ns FROM function_activation" --format json`,
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

			if f.Format == "json" {
				rows, err := ws.store.QueryAll(ctx, args[0])
				if err != nil {
					return failFor(f, WrapExitError(ExitCommandError, "query failed", err))
				}
				if rows == nil {
					rows = []ir.Row{}
				}
				return f.Success(rows)
			}

			// Text output streams rows as the cursor produces them.
			tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			n := 0
			for row, err := range ws.store.Query(ctx, args[0]) {
				if err != nil {
					_ = tw.Flush()
					return failFor(f, WrapExitError(ExitCommandError, "query failed", err))
				}
				if n == 0 {
					fmt.Fprintln(tw, strings.Join(row.Columns, "\t"))
				}
				writeRow(tw, row)
				n++
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(f.Writer, "(no rows)")
			}
			f.VerboseLog("%d row(s)", n)
			return nil
		},
	}
}

func writeRow(w io.Writer, row ir.Row) {
	cells := make([]string, len(row.Values))
	for i, v := range row.Values {
		if v == nil {
			cells[i] = "NULL"
			continue
		}
		cells[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}
