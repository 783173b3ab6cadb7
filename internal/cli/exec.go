package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/omniql-engine/x8ql"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/internal/config"
	"github.com/omniql-engine/x8ql/internal/logging"
	"github.com/omniql-engine/x8ql/mapping"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Params []string
	Seed   string
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <text>",
		Short: "Execute a QL statement against the configured backend",
		Long: `Execute a QL statement against the backend named in the config file.

Without a config file statements run against in-memory collections,
which --seed can fill from a YAML or JSON file keyed by collection name.`,
		Example: `  x8ql exec --seed users.yaml 'query collection "users" where age > @age' --param age=30
  x8ql exec -c x8ql.yaml 'TRANSACT put collection "users" value {"id": 1}; delete collection "users" key 2 END'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML or JSON file of documents to put before running")

	return cmd
}

func runExec(cmd *cobra.Command, opts *ExecOptions, text string) error {
	out := opts.output(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	params, err := parseParams(opts.Params)
	if err != nil {
		return out.Failure(ExitCommandError, "invalid flags", err)
	}
	stmt, err := x8ql.Prepare(text, params)
	if err != nil {
		return out.Failure(ExitFailure, "prepare failed", err)
	}

	client, closer, err := openClient(ctx, opts.config())
	if err != nil {
		return out.Failure(ExitCommandError, "connect failed", err)
	}
	defer closer()

	if opts.Seed != "" {
		if err := seed(ctx, client, opts.Seed); err != nil {
			return out.Failure(ExitCommandError, "seed failed", err)
		}
	}

	rows, err := client.Run(ctx, stmt)
	if err != nil {
		return out.Failure(ExitFailure, "execution failed", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return out.Success(rows)
}

// openClient connects to the configured backend. The returned function
// releases the connection.
func openClient(ctx context.Context, cfg *config.Config) (*x8ql.Client, func(), error) {
	clientOpts := []x8ql.Option{x8ql.WithOptions(cfg.TranslatorOptions())}
	nop := func() {}

	logging.Debug().Str("backend", cfg.Backend).Msg("opening backend")
	switch {
	case cfg.Backend == config.Memory:
		return x8ql.NewMemory(clientOpts...), nop, nil

	case mapping.IsRelational(cfg.Backend):
		db, err := x8ql.OpenSQL(cfg.Backend, cfg.DSN)
		if err != nil {
			return nil, nop, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nop, fmt.Errorf("failed to reach %s: %w", cfg.Backend, err)
		}
		client, err := x8ql.WrapSQL(db, cfg.Backend, clientOpts...)
		if err != nil {
			_ = db.Close()
			return nil, nop, err
		}
		return client, func() { _ = db.Close() }, nil

	case cfg.Backend == "MongoDB":
		mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, nop, err
		}
		closer := func() { _ = mc.Disconnect(context.Background()) }
		if err := mc.Ping(ctx, nil); err != nil {
			closer()
			return nil, nop, fmt.Errorf("failed to reach MongoDB: %w", err)
		}
		return x8ql.WrapMongo(mc.Database(cfg.Database), clientOpts...), closer, nil

	case cfg.Backend == "Redis":
		ro, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nop, err
		}
		rdb := redis.NewClient(ro)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nop, fmt.Errorf("failed to reach Redis: %w", err)
		}
		return x8ql.WrapRedis(rdb, clientOpts...), func() { _ = rdb.Close() }, nil
	}
	return nil, nop, fmt.Errorf("unsupported backend %s", cfg.Backend)
}

// seed puts every document of the file, collection by collection in name
// order.
func seed(ctx context.Context, client *x8ql.Client, path string) error {
	collections, err := readCollections(path)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)

	stmt := &x8ql.Statement{Verb: mapping.VerbBatch}
	for _, name := range names {
		for i, doc := range collections[name] {
			q := &models.Query{Operation: mapping.VerbPut, Collection: name, Value: doc}
			if err := q.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			stmt.Queries = append(stmt.Queries, q)
		}
	}
	if _, err := client.Run(ctx, stmt); err != nil {
		return err
	}
	logging.Debug().Int("documents", len(stmt.Queries)).Msg("seeded")
	return nil
}
