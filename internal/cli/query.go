package cli

import (
	"github.com/spf13/cobra"

	"github.com/omniql-engine/x8ql/engine/parser"
	"github.com/omniql-engine/x8ql/engine/processor"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Data    string
	Where   string
	Select  string
	OrderBy string
	Limit   int64
	Offset  int64
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Filter, sort and project documents from a file",
		Example: `  x8ql query --data users.yaml --where 'age >= 18' --order-by 'name' --limit 10
  x8ql query --data users.json --select 'name, address.city as city'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "YAML or JSON file holding a list of documents")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	cmd.Flags().StringVar(&opts.Select, "select", "", "projection")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "sort keys")
	cmd.Flags().Int64Var(&opts.Limit, "limit", -1, "maximum number of results")
	cmd.Flags().Int64Var(&opts.Offset, "offset", 0, "results to skip")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions) error {
	out := opts.output(cmd)

	items, err := readItems(opts.Data)
	if err != nil {
		return out.Failure(ExitCommandError, "invalid data", err)
	}
	args, err := opts.args()
	if err != nil {
		return out.Failure(ExitFailure, "parse failed", err)
	}

	results, err := processor.New().Query(items, args)
	if err != nil {
		return out.Failure(ExitFailure, "query failed", err)
	}
	return out.Success(toRows(results))
}

func (o *QueryOptions) args() (processor.QueryArgs, error) {
	var args processor.QueryArgs
	var err error
	if o.Where != "" {
		if args.Where, err = parser.ParseWhere(o.Where); err != nil {
			return args, err
		}
	}
	if o.Select != "" {
		if args.Select, err = parser.ParseSelect(o.Select); err != nil {
			return args, err
		}
	}
	if o.OrderBy != "" {
		if args.OrderBy, err = parser.ParseOrderBy(o.OrderBy); err != nil {
			return args, err
		}
	}
	if o.Limit >= 0 {
		args.Limit = &o.Limit
	}
	if o.Offset > 0 {
		args.Offset = &o.Offset
	}
	return args, nil
}
