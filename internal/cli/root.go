package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/provcap/internal/config"
	"github.com/roach88/provcap/internal/layout"
	"github.com/roach88/provcap/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Dir     string // base path; the working directory when empty
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the provcap CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "provcap",
		Short: "provcap - provenance capture store",
		Long: `Inspect and maintain the provenance store of a directory.

Trials, function activations and file snapshots live under .provenance/
in the base path (--dir, or the working directory).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", "", "base path (default: working directory)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTrialsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCatCommand(opts))
	cmd.AddCommand(NewCheckoutCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// basePath resolves the positional path argument, falling back to --dir.
func (o *RootOptions) basePath(args []string) (string, error) {
	p := o.Dir
	if len(args) > 0 && args[0] != "" {
		p = args[0]
	}
	base, err := layout.Resolve(p)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid base path", err)
	}
	return base, nil
}

// workspace is an open store with the configuration and logger it was
// opened with.
type workspace struct {
	base   string
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
}

// openWorkspace loads base's configuration and connects its store. With
// existing set, a base path without provenance fails with ExitFailure and
// nothing is written.
func (o *RootOptions) openWorkspace(ctx context.Context, cmd *cobra.Command, base string, existing bool) (*workspace, error) {
	cfg, err := config.Load(base)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	sopts, err := cfg.StoreOptions(logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	var st *store.Store
	if existing {
		st, err = store.OpenExisting(ctx, base, sopts)
	} else {
		st, err = store.Open(ctx, base, sopts)
	}
	if errors.Is(err, store.ErrNoProvenance) {
		return nil, &ExitError{Code: ExitFailure, Err: err}
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open provenance store", err)
	}

	logger.Debug("provenance store open", "base", base, "created", st.Created(), "config", cfg.File)
	return &workspace{base: base, cfg: cfg, logger: logger, store: st}, nil
}

func (w *workspace) Close() {
	if err := w.store.Close(); err != nil {
		w.logger.Error("error closing provenance store", "error", err)
	}
}

// fail reports err in the configured format and returns it for the exit
// code. Text output is left to the caller of Execute.
func fail(f *OutputFormatter, code string, err *ExitError) error {
	if f.Format == "json" {
		_ = f.Error(code, err.Error(), nil)
	}
	return err
}

// failFor picks the JSON error code for err.
func failFor(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitCommandError, "command failed", err)
	}
	code := CodeCommand
	switch {
	case errors.Is(err, store.ErrNoProvenance):
		code = CodeNoProvenance
	case exitErr.Code == ExitFailure:
		code = CodeNotFound
	}
	return fail(f, code, exitErr)
}
