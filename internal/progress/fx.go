package progress

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("progress",
	fx.Provide(
		NewRedisPublisher,
		NewRelayWithLifecycle,
	),
)

func NewRelayWithLifecycle(lc fx.Lifecycle, rdb *redis.Client, log *zap.Logger) *Relay {
	relay := NewRelay(rdb, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return relay.Close()
		},
	})
	return relay
}
