package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	DB string
}

// ImportResult is the outcome of an import command.
type ImportResult struct {
	DB       string `json:"db"`
	Imported int    `json:"imported"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <defs-dir>",
		Short: "Import component definitions into a store",
		Long: `Compile and validate CUE component definitions, then write them to a
component store. Stored versions are immutable: re-importing an identical
version is a no-op, a changed one is rejected.

Examples:
  sandcalc import ./components --db sandcalc.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "component store path (default from config)")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, defs string) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db := opts.DB
	if db == "" {
		db = opts.Config.DB
	}
	if db == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}

	s, err := openComponents(ctx, "", db)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := importDefinitions(ctx, s, defs)
	if err != nil {
		_ = out.Error(ErrCodeWriteFailed, err.Error(), nil)
		return err
	}

	result := ImportResult{DB: db, Imported: n}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Imported %d component(s) into %s\n", n, db)
	})
}
