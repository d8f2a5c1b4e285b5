package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"TradeGate/internal/domain/models"
	domrepo "TradeGate/internal/domain/repository"
)

// RedisModelStore keeps serialized regime models in Redis, one key per
// symbol. Models are small opaque blobs; no TTL, a model serves until the
// next retrain overwrites it.
type RedisModelStore struct {
	cli    *redis.Client
	prefix string
}

var _ domrepo.ModelStore = (*RedisModelStore)(nil)

func NewRedisModelStore(cli *redis.Client) *RedisModelStore {
	return &RedisModelStore{cli: cli, prefix: "tradegate:model:"}
}

func (s *RedisModelStore) Save(ctx context.Context, symbol string, blob []byte) error {
	if err := s.cli.Set(ctx, s.prefix+symbol, blob, 0).Err(); err != nil {
		return fmt.Errorf("model save %s: %w", symbol, err)
	}
	return nil
}

func (s *RedisModelStore) Load(ctx context.Context, symbol string) ([]byte, error) {
	b, err := s.cli.Get(ctx, s.prefix+symbol).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrModelNotFound
		}
		return nil, fmt.Errorf("model load %s: %w", symbol, err)
	}
	return b, nil
}
