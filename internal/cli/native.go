package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/omniql-engine/x8ql"
	"github.com/omniql-engine/x8ql/engine/reverse"
	"github.com/omniql-engine/x8ql/engine/translator"
	"github.com/omniql-engine/x8ql/engine/validator"
)

// NativeOptions holds flags shared by translate, reverse and validate.
type NativeOptions struct {
	*RootOptions
	Database string
	Params   []string
	Where    bool
}

func (o *NativeOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.config().Backend
}

func addDatabaseFlag(cmd *cobra.Command, opts *NativeOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "target database, defaults to the configured backend")
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NativeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate a QL statement into a native query",
		Example: `  x8ql translate --db postgres 'query collection "users" where age > @age limit 5' --param age=30
  x8ql translate --db mongodb 'update collection "users" set visits=increment(1) where active'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, opts, args[0])
		},
	}

	addDatabaseFlag(cmd, opts)
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter as name=value (repeatable)")

	return cmd
}

func runTranslate(cmd *cobra.Command, opts *NativeOptions, text string) error {
	out := opts.output(cmd)

	params, err := parseParams(opts.Params)
	if err != nil {
		return out.Failure(ExitCommandError, "invalid flags", err)
	}
	stmt, err := x8ql.Prepare(text, params)
	if err != nil {
		return out.Failure(ExitFailure, "prepare failed", err)
	}

	db := opts.database()
	natives := make([]string, 0, len(stmt.Queries))
	for _, q := range stmt.Queries {
		u, err := translator.Translate(q, db, opts.config().TranslatorOptions())
		if err != nil {
			return out.Failure(ExitFailure, "translate failed", err)
		}
		natives = append(natives, u.String())
	}

	if out.Format == "text" {
		for _, n := range natives {
			if err := out.Success(n); err != nil {
				return err
			}
		}
		return nil
	}
	return out.Success(natives)
}

// NewReverseCommand creates the reverse command.
func NewReverseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NativeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reverse <native>",
		Short: "Convert a native query back into QL",
		Example: `  x8ql reverse --db mysql 'SELECT * FROM users WHERE age > 30 ORDER BY name LIMIT 5'
  x8ql reverse --db mongodb '{"find": "users", "filter": {"age": {"$gt": 30}}}'
  x8ql reverse --db postgres --where "name ILIKE 'a%' AND deleted_at IS NULL"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReverse(cmd, opts, args[0])
		},
	}

	addDatabaseFlag(cmd, opts)
	cmd.Flags().BoolVar(&opts.Where, "where", false, "input is a condition rather than a statement")

	return cmd
}

func runReverse(cmd *cobra.Command, opts *NativeOptions, native string) error {
	out := opts.output(cmd)
	db := opts.database()

	if opts.Where {
		expr, err := reverse.ToWhere(native, db)
		if err != nil {
			return out.Failure(ExitFailure, "reverse failed", err)
		}
		return out.Success(expr.String())
	}
	q, err := reverse.ToQuery(native, db)
	if err != nil {
		return out.Failure(ExitFailure, "reverse failed", err)
	}
	return out.Success(reverse.ToText(q))
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NativeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <native>",
		Short: "Check the syntax of a native query",
		Long: `Check the syntax of a native query without connecting to a database.

Exit codes:
  0 - Query is valid
  1 - Query is invalid
  2 - Command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	addDatabaseFlag(cmd, opts)

	return cmd
}

func runValidate(cmd *cobra.Command, opts *NativeOptions, native string) error {
	out := opts.output(cmd)

	res, err := validator.ValidateSQLWithDetails(native, opts.database())
	if err != nil {
		return out.Failure(ExitCommandError, "validation failed", err)
	}
	if !res.Valid {
		return out.Failure(ExitFailure, "invalid query", errors.New(res.Error))
	}
	return out.Success("valid")
}
