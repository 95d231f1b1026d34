// Package store 提供 game.Store 的几种后端实现
package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/party-game/internal/config"
	"github.com/wfunc/party-game/internal/game"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 存储驱动
const (
	DriverMemory   = "memory"
	DriverDatabase = "database"
	DriverRedis    = "redis"
)

var (
	_ game.Store = (*MemoryStore)(nil)
	_ game.Store = (*DatabaseStore)(nil)
	_ game.Store = (*RedisStore)(nil)
	_ game.Store = (*CachedStore)(nil)
)

// New 按配置创建存储。database/redis 驱动需要对应的连接；开启缓存时在前面加一层内存缓存
func New(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient, log *zap.Logger) (game.Store, error) {
	var backend game.Store
	switch cfg.Store.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverDatabase:
		if db == nil {
			return nil, fmt.Errorf("存储驱动 %s 需要数据库连接", cfg.Store.Driver)
		}
		backend = NewDatabaseStore(db)
	case DriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("存储驱动 %s 需要Redis连接", cfg.Store.Driver)
		}
		backend = NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.Redis.StateTTL)
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", cfg.Store.Driver)
	}

	if cfg.Store.Cache {
		log.Info("启用状态缓存", zap.String("driver", cfg.Store.Driver))
		return NewCachedStore(NewMemoryStore(), backend, log), nil
	}
	return backend, nil
}

// DatabaseOf 取出底层的数据库存储，用于查询对局记录
func DatabaseOf(s game.Store) (*DatabaseStore, bool) {
	if c, ok := s.(*CachedStore); ok {
		s = c.Backend()
	}
	d, ok := s.(*DatabaseStore)
	return d, ok
}
