package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/party-game/internal/config"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/logger"
)

const backendRedis = "redis"

// NewRedisClient 按配置创建客户端并检查连通性
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, apperrors.Wrapf(err, apperrors.ErrCacheConnect, "连接Redis失败: %s", cfg.Addr)
	}
	return rdb, nil
}

// RedisStore Redis状态存储，key 为 前缀+房间ID，值为JSON
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建Redis存储，ttl为0表示不过期
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "game:"
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key 房间对应的key
func (s *RedisStore) Key(roomID string) string {
	return s.prefix + roomID
}

// GetGame 读取状态
func (s *RedisStore) GetGame(ctx context.Context, roomID string) (state *game.GameState, err error) {
	start := time.Now()
	defer func() { logger.LogStoreOperation("get", backendRedis, time.Since(start), err) }()

	return getJSON(ctx, s.rdb, s.Key(roomID))
}

// UpdateGame 使用 WATCH 乐观锁合并后写入
func (s *RedisStore) UpdateGame(ctx context.Context, roomID string, state *game.GameState) (merged *game.GameState, err error) {
	start := time.Now()
	defer func() { logger.LogStoreOperation("update", backendRedis, time.Since(start), err) }()

	key := s.Key(roomID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := getJSON(ctx, tx, key)
		if err != nil {
			return err
		}
		merged = game.MergeState(prev, state)

		data, err := json.Marshal(merged)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDataIntegrity, "序列化游戏状态")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCacheOperation, "写入游戏状态")
	}
	return merged, nil
}

// DeleteGame 删除状态
func (s *RedisStore) DeleteGame(ctx context.Context, roomID string) (err error) {
	start := time.Now()
	defer func() { logger.LogStoreOperation("delete", backendRedis, time.Since(start), err) }()

	if err := s.rdb.Del(ctx, s.Key(roomID)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCacheOperation, "删除游戏状态")
	}
	return nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, c stringGetter, key string) (*game.GameState, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCacheOperation, "读取游戏状态")
	}

	var state game.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDataIntegrity, "反序列化游戏状态")
	}
	return &state, nil
}
