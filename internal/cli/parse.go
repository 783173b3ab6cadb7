package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/omniql-engine/x8ql/engine/parser"
	"github.com/omniql-engine/x8ql/engine/wire"
	"github.com/omniql-engine/x8ql/mapping"
)

// ParseOptions holds flags for the parse command.
type ParseOptions struct {
	*RootOptions
	Kind string
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse QL text and print the tree",
		Long: `Parse QL text with one of the entry points.

Text output prints the canonical rendering of the tree; json and yaml
print its wire encoding.`,
		Example: `  x8ql parse 'query users where age > 30 limit 5'
  x8ql parse --kind where 'name like "a%" and not deleted' --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", parser.KindStatement,
		fmt.Sprintf("entry point (%v)", mapping.EntryKinds))

	return cmd
}

func runParse(cmd *cobra.Command, opts *ParseOptions, text string) error {
	out := opts.output(cmd)
	if !slices.Contains(mapping.EntryKinds, opts.Kind) {
		return out.Failure(ExitCommandError, "invalid flags",
			fmt.Errorf("invalid kind %q: must be one of %v", opts.Kind, mapping.EntryKinds))
	}

	node, err := parser.Parse(text, opts.Kind)
	if err != nil {
		return out.Failure(ExitFailure, "parse failed", err)
	}
	if out.Format == "text" {
		if node == nil {
			return out.Success("")
		}
		return out.Success(node.String())
	}

	v, err := wire.Encode(node)
	if err != nil {
		return out.Failure(ExitFailure, "encode failed", err)
	}
	return out.Success(v.AsInterface())
}
