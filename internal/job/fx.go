package job

import (
	"context"

	"github.com/quoteforgelabs/quoteforge/internal/job/queue"
	"github.com/quoteforgelabs/quoteforge/internal/job/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("job",
	fx.Provide(
		repository.Provide,
		queue.New,
		queue.ProvideQueue,
	),
)

// WorkerModule additionally runs the worker pool and janitor. Only the
// worker process imports it.
var WorkerModule = fx.Module("job.worker",
	fx.Provide(
		queue.NewPool,
		queue.NewJanitor,
	),
	fx.Invoke(registerWorkerLifecycle),
)

func registerWorkerLifecycle(lc fx.Lifecycle, pool *queue.Pool, janitor *queue.Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pool.Start()
			janitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := janitor.Stop(ctx); err != nil {
				return err
			}
			return pool.Stop(ctx)
		},
	})
}
