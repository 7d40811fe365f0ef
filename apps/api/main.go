// API-only process. Serves job submission, synchronous pricing, quotes,
// revision history, and the progress event stream. Jobs are executed by the
// worker process.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/quoteforgelabs/quoteforge/internal/bootstrap"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/config"
	"github.com/quoteforgelabs/quoteforge/internal/idempotency"
	"github.com/quoteforgelabs/quoteforge/internal/job"
	"github.com/quoteforgelabs/quoteforge/internal/observability"
	"github.com/quoteforgelabs/quoteforge/internal/pricing"
	"github.com/quoteforgelabs/quoteforge/internal/progress"
	"github.com/quoteforgelabs/quoteforge/internal/quote"
	"github.com/quoteforgelabs/quoteforge/internal/redis"
	"github.com/quoteforgelabs/quoteforge/internal/revision"
	"github.com/quoteforgelabs/quoteforge/internal/server"
	"github.com/quoteforgelabs/quoteforge/pkg/db"
	"github.com/quoteforgelabs/quoteforge/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		bootstrap.Module,
		fx.Invoke(bootstrap.EnforceSchemaGate),

		idempotency.Module,
		progress.Module,
		quote.Module,
		pricing.Module,
		revision.Module,
		job.Module,

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
