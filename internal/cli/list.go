package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sandcalc/internal/ir"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Defs         string
	DB           string
	DependentsOf string
}

// ComponentSummary is one line of list output.
type ComponentSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Kind         string   `json:"kind"`
	Dependencies []string `json:"dependencies,omitempty"`
	Computed     bool     `json:"computed"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored components",
		Long: `List every stored component version with its dependencies.

With --dependents-of, list only the versions that depend on the given
component version.

Examples:
  sandcalc list --db sandcalc.db
  sandcalc list --defs ./components --dependents-of 1@1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Defs, "defs", "", "CUE definitions directory")
	cmd.Flags().StringVar(&opts.DB, "db", "", "component store path")
	cmd.Flags().StringVar(&opts.DependentsOf, "dependents-of", "", "only list dependents of <id>@<version>")

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db := opts.DB
	if db == "" {
		db = opts.Config.DB
	}
	s, err := openComponents(ctx, opts.Defs, db)
	if err != nil {
		return err
	}
	defer s.Close()

	components, err := s.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "read store", err)
	}

	if opts.DependentsOf != "" {
		target, err := ir.ParseComponentID(opts.DependentsOf)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --dependents-of", err)
		}
		ids, err := s.Dependents(ctx, target)
		if err != nil {
			return WrapExitError(ExitCommandError, "read store", err)
		}
		keep := make(map[string]bool, len(ids))
		for _, id := range ids {
			keep[id.Key()] = true
		}
		filtered := components[:0]
		for _, c := range components {
			if keep[c.ID.Key()] {
				filtered = append(filtered, c)
			}
		}
		components = filtered
	}

	summaries := make([]ComponentSummary, len(components))
	for i, c := range components {
		deps := make([]string, len(c.DependencyIDs))
		for j, d := range c.DependencyIDs {
			deps[j] = d.Key()
		}
		summaries[i] = ComponentSummary{
			ID:           c.ID.Key(),
			Name:         c.Name,
			Kind:         string(c.Kind),
			Dependencies: deps,
			Computed:     c.ComputedResult != nil,
		}
	}

	return out.Success(summaries, func(w io.Writer) {
		if len(summaries) == 0 {
			fmt.Fprintln(w, "No components.")
			return
		}
		for _, c := range summaries {
			line := fmt.Sprintf("%s\t%s\t%s", c.ID, c.Kind, c.Name)
			if len(c.Dependencies) > 0 {
				line += "\t-> " + strings.Join(c.Dependencies, ", ")
			}
			fmt.Fprintln(w, line)
		}
	})
}
