// Package cli implements carbonctl, the operator command line for the carbon tracker.
package cli

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/soniam4/carbonfootprint-tracker/internal/catalog"
	"github.com/soniam4/carbonfootprint-tracker/internal/config"
	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
	"github.com/soniam4/carbonfootprint-tracker/internal/logging"
	persistence "github.com/soniam4/carbonfootprint-tracker/internal/persistence/postgres"
)

// Store is the storage carbonctl administers.
type Store interface {
	catalog.Store
	domain.RecommendationStore
	CatalogVersion(ctx context.Context) (string, error)
}

// StoreOpener connects to a Store. The returned func releases it.
type StoreOpener func(ctx context.Context, databaseURL string) (Store, func(), error)

// OpenPostgres is the StoreOpener used outside of tests.
func OpenPostgres(ctx context.Context, databaseURL string) (Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return persistence.NewRepository(pool), pool.Close, nil
}

// app carries state shared by every subcommand.
type app struct {
	cfg    config.Config
	open   StoreOpener
	logger zerolog.Logger

	databaseURL string
	logLevel    string
	logFormat   string
}

const rootCmdExample = `  # Check a catalog file before shipping it
  carbonctl catalog validate --file catalog.yaml

  # Apply the embedded catalog to the database
  carbonctl catalog load

  # Re-run recommendation assignment for every user
  carbonctl recommendations refresh`

// NewRootCmd creates the root command backed by PostgreSQL.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithStore(ver, OpenPostgres)
}

// NewRootCmdWithStore creates the root command with an explicit store opener for testability.
func NewRootCmdWithStore(ver string, open StoreOpener) *cobra.Command {
	a := &app{cfg: config.Load(), open: open, logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "carbonctl",
		Short:         "Carbon tracker operator CLI",
		Long:          "carbonctl manages the reference catalog and recommendation assignments of the carbon tracker.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.logger = logging.New(logging.Config{
				Level:  a.logLevel,
				Format: a.logFormat,
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	cmd.SetOut(os.Stdout)

	cmd.PersistentFlags().StringVar(&a.databaseURL, "database-url", a.cfg.PostgresURL, "PostgreSQL connection string")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "log format (json or console)")

	cmd.AddCommand(
		newCatalogCmd(a),
		newRecommendationsCmd(a),
	)
	return cmd
}

// withStore opens the store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(Store) error) error {
	store, closeFn, err := a.open(ctx, a.databaseURL)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(store)
}
