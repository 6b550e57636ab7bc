package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sandcalc/internal/formatter"
	"github.com/roach88/sandcalc/internal/ir"
)

// FormatOptions holds flags for the format command.
type FormatOptions struct {
	*RootOptions
	Args []string // "name" or "name=default", in signature order
	Body string
}

// NewFormatCommand creates the format command.
func NewFormatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FormatOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "format [body-file]",
		Short: "Build the callable source of a function component",
		Long: `Build "(args) => body" from an argument list and a formula body.

The body is read from --body, from body-file, or from stdin when body-file
is "-". Nothing is evaluated.

Examples:
  sandcalc format --arg a --arg b=10 --body "a + b"
  sandcalc format --arg x body.js
  echo "x * 2" | sandcalc format --arg x -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, opts, args)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "argument name or name=default (repeatable, in order)")
	cmd.Flags().StringVar(&opts.Body, "body", "", "formula body")

	return cmd
}

func runFormat(cmd *cobra.Command, opts *FormatOptions, args []string) error {
	out := opts.formatter(cmd)

	body := opts.Body
	if len(args) == 1 {
		if opts.Body != "" {
			return NewExitError(ExitCommandError, "provide either --body or body-file")
		}
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "read body", err)
		}
		body = string(data)
	}

	arguments, err := parseArgumentFlags(opts.Args)
	if err != nil {
		return err
	}

	formatted := formatter.Format(arguments, body)
	if formatted.Result == "" {
		_ = out.Error(ErrCodeBadInput, "function body is empty", nil)
		return NewExitError(ExitFailure, "function body is empty")
	}

	return out.Success(formatted, func(w io.Writer) {
		fmt.Fprintln(w, formatted.Result)
	})
}

// parseArgumentFlags turns "name" / "name=default" flags into arguments.
func parseArgumentFlags(flags []string) ([]ir.FunctionArgument, error) {
	args := make([]ir.FunctionArgument, 0, len(flags))
	for _, f := range flags {
		name, def, _ := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --arg %q: name is empty", f))
		}
		args = append(args, ir.FunctionArgument{Name: name, DefaultValue: strings.TrimSpace(def)})
	}
	return args, nil
}
