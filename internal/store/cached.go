package store

import (
	"context"

	"github.com/wfunc/party-game/internal/game"
	"go.uber.org/zap"
)

// CachedStore 带缓存的存储（装饰器模式），写穿存储层，读优先缓存
type CachedStore struct {
	cache   game.Store
	storage game.Store
	logger  *zap.Logger
}

// NewCachedStore 创建带缓存的存储
func NewCachedStore(cache, storage game.Store, log *zap.Logger) *CachedStore {
	return &CachedStore{
		cache:   cache,
		storage: storage,
		logger:  log,
	}
}

// GetGame 先读缓存，未命中再读存储并回填
func (s *CachedStore) GetGame(ctx context.Context, roomID string) (*game.GameState, error) {
	if state, err := s.cache.GetGame(ctx, roomID); err == nil && state != nil {
		return state, nil
	} else if err != nil {
		s.logger.Warn("读取缓存失败", zap.String("room_id", roomID), zap.Error(err))
	}

	state, err := s.storage.GetGame(ctx, roomID)
	if err != nil || state == nil {
		return state, err
	}

	// 回填失败不影响主流程
	if _, err := s.cache.UpdateGame(ctx, roomID, state); err != nil {
		s.logger.Warn("回填缓存失败", zap.String("room_id", roomID), zap.Error(err))
	}
	return state, nil
}

// UpdateGame 先写存储，再用合并结果覆盖缓存
func (s *CachedStore) UpdateGame(ctx context.Context, roomID string, state *game.GameState) (*game.GameState, error) {
	saved, err := s.storage.UpdateGame(ctx, roomID, state)
	if err != nil {
		return nil, err
	}

	if _, err := s.cache.UpdateGame(ctx, roomID, saved); err != nil {
		s.logger.Warn("写入缓存失败，清除缓存", zap.String("room_id", roomID), zap.Error(err))
		_ = s.cache.DeleteGame(ctx, roomID)
	}
	return saved, nil
}

// DeleteGame 先删缓存再删存储
func (s *CachedStore) DeleteGame(ctx context.Context, roomID string) error {
	_ = s.cache.DeleteGame(ctx, roomID)
	return s.storage.DeleteGame(ctx, roomID)
}

// Backend 返回被缓存的存储
func (s *CachedStore) Backend() game.Store {
	return s.storage
}
