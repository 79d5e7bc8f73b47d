package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/activation"
	"github.com/roach88/provcap/internal/ir"
	"github.com/roach88/provcap/internal/store"
)

// CallNode is one activation in the show command's JSON output.
type CallNode struct {
	Name      string      `json:"name"`
	Line      int         `json:"line"`
	StartNS   int64       `json:"start_ns"`
	FinishNS  *int64      `json:"finish_ns"`
	Returns   ir.Value    `json:"returns,omitempty"`
	Arguments ir.Object   `json:"arguments,omitempty"`
	Files     []FileNode  `json:"files,omitempty"`
	Context   []string    `json:"context,omitempty"`
	Calls     []*CallNode `json:"calls,omitempty"`
}

// FileNode is one file access in the show command's JSON output.
type FileNode struct {
	Name        string `json:"name"`
	Mode        string `json:"mode,omitempty"`
	TimestampNS int64  `json:"timestamp_ns"`
	Before      string `json:"before,omitempty"`
	After       string `json:"after,omitempty"`
}

// ShowResult is the show command's output.
type ShowResult struct {
	Trial ir.Row    `json:"trial"`
	Root  *CallNode `json:"root"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [trial]",
		Short: "Show a trial's call tree",
		Long: `Show a trial and its function activations as a call tree.
Without a trial id the latest trial is shown.

Calls that never returned are marked "unfinished". With --verbose,
file accesses and their content digests are listed under each call.

Examples:
  provcap show
  provcap show 0190f1c2-...
  provcap show 0190f1c2-... --format json`,
		Args:          cobra.MaximumNArgs(1),
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

			var trial *store.Trial
			if len(args) == 0 {
				trial, err = ws.store.LatestTrial(ctx)
			} else {
				trial, err = ws.store.LoadTrial(ctx, args[0])
			}
			if errors.Is(err, store.ErrTrialNotFound) {
				return failFor(f, &ExitError{Code: ExitFailure, Err: err})
			}
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to load trial", err))
			}

			root, err := trial.Activations(ctx)
			if err != nil {
				return failFor(f, WrapExitError(ExitCommandError, "failed to load activations", err))
			}

			result := ShowResult{Trial: trial.ToDict(nil, []string{"duration"}), Root: callNode(root)}
			return f.Render(result, func(w io.Writer) error {
				return writeTree(w, trial, root, rootOpts.Verbose)
			})
		},
	}
}

func callNode(a *activation.Activation) *CallNode {
	if a == nil {
		return nil
	}
	node := &CallNode{
		Name:    a.Name,
		Line:    a.Line,
		StartNS: int64(a.Start),
	}
	if a.Finished() {
		finish := int64(a.Finish)
		node.FinishNS = &finish
		node.Returns = a.ReturnValue
	}
	if len(a.Arguments) > 0 {
		node.Arguments = a.Arguments
	}
	for _, fa := range a.FileAccesses {
		node.Files = append(node.Files, FileNode{
			Name:        fa.Name,
			Mode:        fa.Mode,
			TimestampNS: int64(fa.Timestamp),
			Before:      fa.ContentHashBefore,
			After:       fa.ContentHashAfter,
		})
	}
	if len(a.Context) > 0 {
		node.Context = sortedNames(a.Context)
	}
	for _, child := range a.FunctionActivations {
		node.Calls = append(node.Calls, callNode(child))
	}
	return node
}

func writeTree(w io.Writer, trial *store.Trial, root *activation.Activation, verbose bool) error {
	fmt.Fprintf(w, "Trial %s (%s)\n", trial.ID, trial.Status)
	fmt.Fprintf(w, "Script: %s\n", trial.Script)
	if trial.Command != "" {
		fmt.Fprintf(w, "Command: %s\n", trial.Command)
	}
	if trial.ParentID != nil {
		fmt.Fprintf(w, "Parent: %s\n", *trial.ParentID)
	}
	if trial.CodeVersion != "" {
		fmt.Fprintf(w, "Code version: %s\n", trial.CodeVersion)
	}
	fmt.Fprintln(w)

	if root == nil {
		fmt.Fprintln(w, "  (no activations)")
		return nil
	}

	root.Walk(func(a *activation.Activation, depth int) bool {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(w, "%s%s(%s) line %d", indent, a.Name, formatArguments(a.Arguments), a.Line)
		if a.Finished() {
			fmt.Fprintf(w, " -> %s [%s]\n", ir.Repr(a.ReturnValue), time.Duration(a.Finish-a.Start))
		} else {
			fmt.Fprintln(w, " unfinished")
		}
		if verbose {
			for _, fa := range a.FileAccesses {
				fmt.Fprintf(w, "%s  file %s (%s) %s -> %s\n", indent, fa.Name, fa.Mode,
					shortDigest(fa.ContentHashBefore), shortDigest(fa.ContentHashAfter))
			}
		}
		return true
	})
	return nil
}

func formatArguments(args ir.Object) string {
	parts := make([]string, 0, len(args))
	for _, k := range args.SortedKeys() {
		parts = append(parts, k+"="+ir.Repr(args[k]))
	}
	return strings.Join(parts, ", ")
}

// shortDigest truncates a digest for display.
func shortDigest(d string) string {
	if d == "" {
		return "-"
	}
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func sortedNames(m map[string]activation.DefinitionPoint) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
