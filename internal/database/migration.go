package database

import (
	"fmt"

	"github.com/wfunc/party-game/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// sqlite 多进程同时迁移会锁库
	if path := sqlitePath(db); path != "" {
		CleanupStaleLocks(path)
		lockFile, err := acquireMigrationLock(path, log)
		if err != nil {
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile, log)
	}

	migrationModels := []interface{}{
		&models.GameSnapshot{},
		&models.GameRecord{},
	}

	log.Info("开始数据库迁移...")
	for _, model := range migrationModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		log.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}
	log.Info("数据库迁移完成")

	return nil
}
