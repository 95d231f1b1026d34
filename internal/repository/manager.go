package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	gameSnapshotOnce sync.Once
	gameSnapshot     GameSnapshotRepository

	gameRecordOnce sync.Once
	gameRecord     GameRecordRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// DB 获取数据库实例
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// GameSnapshot 获取游戏快照仓储
func (m *Manager) GameSnapshot() GameSnapshotRepository {
	m.gameSnapshotOnce.Do(func() {
		m.gameSnapshot = NewGameSnapshotRepository(m.db)
	})
	return m.gameSnapshot
}

// GameRecord 获取对局结果仓储
func (m *Manager) GameRecord() GameRecordRepository {
	m.gameRecordOnce.Do(func() {
		m.gameRecord = NewGameRecordRepository(m.db)
	})
	return m.gameRecord
}

// Transaction 在事务中执行，回调拿到绑定事务的管理器
func (m *Manager) Transaction(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}
