package storage

import (
	"context"
	"errors"
	"fmt"

	"evostrat/internal/model"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "evostrat:"

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps each record as one JSON string value, so several
// coordinators can share one Redis under distinct prefixes.
type RedisStore struct {
	opts   RedisOptions
	client *redis.Client
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultRedisPrefix
	}
	return &RedisStore{opts: opts}
}

func (s *RedisStore) Init(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	if s.opts.Addr == "" {
		return errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     s.opts.Addr,
		Password: s.opts.Password,
		DB:       s.opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.client = client
	return nil
}

func (s *RedisStore) checkpointKey(key string) string {
	return s.opts.KeyPrefix + "checkpoint:" + key
}

func (s *RedisStore) historyKey(runID string) string {
	return s.opts.KeyPrefix + "history:" + runID
}

func (s *RedisStore) SaveCheckpoint(ctx context.Context, checkpoint model.Checkpoint) error {
	if s.client == nil {
		return errNotInitialized
	}
	if err := validateCheckpoint(checkpoint); err != nil {
		return err
	}
	payload, err := EncodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.checkpointKey(checkpoint.Key), payload, 0).Err()
}

func (s *RedisStore) GetCheckpoint(ctx context.Context, key string) (model.Checkpoint, bool, error) {
	if s.client == nil {
		return model.Checkpoint{}, false, errNotInitialized
	}
	payload, err := s.client.Get(ctx, s.checkpointKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, err
	}
	checkpoint, err := DecodeCheckpoint(payload)
	if err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", key, err)
	}
	return checkpoint, true, nil
}

func (s *RedisStore) SaveRewardHistory(ctx context.Context, runID string, history []float64) error {
	if s.client == nil {
		return errNotInitialized
	}
	if err := validateRewardHistory(runID, history); err != nil {
		return err
	}
	payload, err := EncodeRewardHistory(history)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.historyKey(runID), payload, 0).Err()
}

func (s *RedisStore) GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	if s.client == nil {
		return nil, false, errNotInitialized
	}
	payload, err := s.client.Get(ctx, s.historyKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	history, err := DecodeRewardHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode reward history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
