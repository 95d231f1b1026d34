package store

import (
	"context"
	"sync"

	"github.com/wfunc/party-game/internal/game"
)

// MemoryStore 内存状态存储（默认）
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*game.GameState
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*game.GameState),
	}
}

// GetGame 读取状态，返回副本
func (m *MemoryStore) GetGame(ctx context.Context, roomID string) (*game.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[roomID]
	if !exists {
		return nil, nil
	}
	return state.Clone(), nil
}

// UpdateGame 合并后保存，返回副本
func (m *MemoryStore) UpdateGame(ctx context.Context, roomID string, state *game.GameState) (*game.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := game.MergeState(m.states[roomID], state)
	m.states[roomID] = merged
	return merged.Clone(), nil
}

// DeleteGame 删除状态
func (m *MemoryStore) DeleteGame(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, roomID)
	return nil
}

// Len 当前保存的房间数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
