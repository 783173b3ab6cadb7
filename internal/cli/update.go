package cli

import (
	"github.com/spf13/cobra"

	"github.com/omniql-engine/x8ql/engine/parser"
	"github.com/omniql-engine/x8ql/engine/processor"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Data  string
	Set   string
	Where string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply update operations to documents from a file",
		Long: `Apply update operations to every matching document and print the
whole list. Documents that do not match are printed unchanged.`,
		Example: `  x8ql update --data users.yaml --set 'status=put("active"), visits=increment(1)' --where 'age >= 18'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "YAML or JSON file holding a list of documents")
	cmd.Flags().StringVar(&opts.Set, "set", "", "update operations")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("set")

	return cmd
}

func runUpdate(cmd *cobra.Command, opts *UpdateOptions) error {
	out := opts.output(cmd)

	items, err := readItems(opts.Data)
	if err != nil {
		return out.Failure(ExitCommandError, "invalid data", err)
	}
	upd, err := parser.ParseUpdate(opts.Set)
	if err != nil {
		return out.Failure(ExitFailure, "parse failed", err)
	}
	where, err := parser.ParseWhere(opts.Where)
	if err != nil {
		return out.Failure(ExitFailure, "parse failed", err)
	}

	proc := processor.New()
	for i, item := range items {
		ok, err := proc.FilterItem(item, where)
		if err != nil {
			return out.Failure(ExitFailure, "update failed", err)
		}
		if !ok {
			continue
		}
		if items[i], err = proc.UpdateItem(item, upd); err != nil {
			return out.Failure(ExitFailure, "update failed", err)
		}
	}
	return out.Success(toRows(items))
}
