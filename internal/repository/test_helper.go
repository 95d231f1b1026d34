package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/party-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建迁移好的内存测试数据库
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 每个测试独立的共享缓存内存库
	dsn := fmt.Sprintf("file:test_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.GameSnapshot{}, &models.GameRecord{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateTestRecord 创建测试对局结果
func CreateTestRecord(roomID, gameType string, winners ...string) *models.GameRecord {
	now := time.Now()
	return &models.GameRecord{
		RoomID:     roomID,
		GameType:   gameType,
		Players:    models.StringList{"u1", "u2"},
		Winners:    models.StringList(winners),
		EndReason:  "completed",
		Moves:      3,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}
