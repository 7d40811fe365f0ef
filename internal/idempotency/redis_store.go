package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisStore struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisStore builds a Store on redis SET NX EX, the single atomic
// conditional-set the design relies on.
func NewRedisStore(rdb *redis.Client, log *zap.Logger) Store {
	return &redisStore{
		rdb: rdb,
		log: log.Named("idempotency.store"),
	}
}

// claimAttempts bounds the SETNX/GET loop when a claim expires between
// the two commands. Two retries are plenty; the window is one round trip.
const claimAttempts = 3

func (s *redisStore) Claim(ctx context.Context, key, jobID string, ttl time.Duration) (ClaimResult, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		ok, err := s.rdb.SetNX(ctx, key, jobID, ttl).Result()
		if err != nil {
			return ClaimResult{}, err
		}
		if ok {
			return ClaimResult{IsNew: true}, nil
		}

		existing, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// Claim expired between SETNX and GET; take another pass at
			// claiming the now-free key.
			s.log.Warn("idempotency claim expired mid-read",
				zap.String("key", key), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return ClaimResult{}, err
		}
		return ClaimResult{IsNew: false, ExistingJobID: existing}, nil
	}
	return ClaimResult{}, fmt.Errorf("idempotency claim on %q kept expiring mid-read", key)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *redisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
