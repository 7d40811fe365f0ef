package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quoteforgelabs/quoteforge/internal/bootstrap"
	"github.com/quoteforgelabs/quoteforge/internal/cad"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	"github.com/quoteforgelabs/quoteforge/internal/idempotency"
	"github.com/quoteforgelabs/quoteforge/internal/job"
	"github.com/quoteforgelabs/quoteforge/internal/migration"
	"github.com/quoteforgelabs/quoteforge/internal/observability"
	"github.com/quoteforgelabs/quoteforge/internal/pricing"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	"github.com/quoteforgelabs/quoteforge/internal/quote"
	"github.com/quoteforgelabs/quoteforge/internal/redis"
	"github.com/quoteforgelabs/quoteforge/internal/revision"
	"github.com/quoteforgelabs/quoteforge/internal/scheduler"
	"github.com/quoteforgelabs/quoteforge/internal/server"
	"github.com/quoteforgelabs/quoteforge/internal/workers"
	"github.com/quoteforgelabs/quoteforge/pkg/db"
	"github.com/quoteforgelabs/quoteforge/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "quoteforge",
		Short:   "QuoteForge CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newWorkerCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and activate schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quoting API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			runWorker()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and workers in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runMonolith()
			return nil
		},
	}
}

// coreModules is the infrastructure every process needs.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
	)
}

// domainModules is everything the quoting pipeline shares between the API
// and worker processes.
func domainModules() fx.Option {
	return fx.Options(
		bootstrap.Module,
		fx.Invoke(bootstrap.EnforceSchemaGate),
		redis.Module,
		idempotency.Module,
		progress.Module,
		quote.Module,
		pricing.Module,
		revision.Module,
		job.Module,
	)
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		log.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		coreModules(),
		domainModules(),
		server.Module,
	)
	app.Run()
}

func runWorker() {
	app := fx.New(
		coreModules(),
		domainModules(),
		cad.Module,
		workers.Module,
		job.WorkerModule,
		scheduler.Module,
	)
	app.Run()
}

func runMonolith() {
	app := fx.New(
		coreModules(),
		domainModules(),
		cad.Module,
		workers.Module,
		job.WorkerModule,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
