package repository

import (
	"context"

	"github.com/wfunc/party-game/internal/models"
	"gorm.io/gorm"
)

// GameRecordRepository 对局结果仓储接口
type GameRecordRepository interface {
	BaseRepository
	Create(ctx context.Context, record *models.GameRecord) error
	FindRecent(ctx context.Context, p *Pagination) ([]*models.GameRecord, error)
	FindByRoomID(ctx context.Context, roomID string, p *Pagination) ([]*models.GameRecord, error)
	CountByGameType(ctx context.Context) (map[string]int64, error)
}

// gameRecordRepo 对局结果仓储实现
type gameRecordRepo struct {
	*BaseRepo
}

// NewGameRecordRepository 创建对局结果仓储
func NewGameRecordRepository(db *gorm.DB) GameRecordRepository {
	return &gameRecordRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入对局结果
func (r *gameRecordRepo) Create(ctx context.Context, record *models.GameRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindRecent 最近结束的对局
func (r *gameRecordRepo) FindRecent(ctx context.Context, p *Pagination) ([]*models.GameRecord, error) {
	var records []*models.GameRecord
	query := r.db.WithContext(ctx).Model(&models.GameRecord{})

	if err := query.Count(&p.Total).Error; err != nil {
		return nil, err
	}
	err := query.Scopes(Paginate(p)).
		Order("finished_at DESC").
		Find(&records).Error
	return records, err
}

// FindByRoomID 房间的历史对局
func (r *gameRecordRepo) FindByRoomID(ctx context.Context, roomID string, p *Pagination) ([]*models.GameRecord, error) {
	var records []*models.GameRecord
	query := r.db.WithContext(ctx).Model(&models.GameRecord{}).Where("room_id = ?", roomID)

	if err := query.Count(&p.Total).Error; err != nil {
		return nil, err
	}
	err := query.Scopes(Paginate(p)).
		Order("finished_at DESC").
		Find(&records).Error
	return records, err
}

// CountByGameType 各游戏类型的对局数
func (r *gameRecordRepo) CountByGameType(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		GameType string
		Count    int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.GameRecord{}).
		Select("game_type, COUNT(*) AS count").
		Group("game_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.GameType] = row.Count
	}
	return counts, nil
}
