package progress

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher fans one event out to every subscriber of the job's room.
type Publisher interface {
	Publish(ctx context.Context, orgID string, payload Payload) error
}

type redisPublisher struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, log *zap.Logger) Publisher {
	return &redisPublisher{rdb: rdb, log: log.Named("progress.publisher")}
}

func (p *redisPublisher) Publish(ctx context.Context, orgID string, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	room := Room(orgID, payload.JobID)
	if err := p.rdb.Publish(ctx, room, raw).Err(); err != nil {
		p.log.Warn("publish failed",
			zap.String("room", room),
			zap.String("status", payload.Status),
			zap.Error(err))
		return err
	}
	return nil
}
