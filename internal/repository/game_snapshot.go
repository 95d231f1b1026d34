package repository

import (
	"context"
	"time"

	"github.com/wfunc/party-game/internal/models"
	"gorm.io/gorm"
)

// GameSnapshotRepository 游戏快照仓储接口
type GameSnapshotRepository interface {
	BaseRepository
	Upsert(ctx context.Context, snapshot *models.GameSnapshot) error
	FindByRoomID(ctx context.Context, roomID string) (*models.GameSnapshot, error)
	DeleteByRoomID(ctx context.Context, roomID string) error
	FindByStatus(ctx context.Context, status string, p *Pagination) ([]*models.GameSnapshot, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CleanupFinished(ctx context.Context, before time.Time) (int64, error)
}

// gameSnapshotRepo 游戏快照仓储实现
type gameSnapshotRepo struct {
	*BaseRepo
}

// NewGameSnapshotRepository 创建游戏快照仓储
func NewGameSnapshotRepository(db *gorm.DB) GameSnapshotRepository {
	return &gameSnapshotRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Upsert 存在则更新，不存在则插入
func (r *gameSnapshotRepo) Upsert(ctx context.Context, snapshot *models.GameSnapshot) error {
	return r.db.WithContext(ctx).
		Where("room_id = ?", snapshot.RoomID).
		Assign(map[string]interface{}{
			"game_type":  snapshot.GameType,
			"status":     snapshot.Status,
			"state_data": snapshot.StateData,
			"updated_at": time.Now(),
		}).
		FirstOrCreate(snapshot).Error
}

// FindByRoomID 按房间查找，不存在返回 gorm.ErrRecordNotFound
func (r *gameSnapshotRepo) FindByRoomID(ctx context.Context, roomID string) (*models.GameSnapshot, error) {
	var snapshot models.GameSnapshot
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// DeleteByRoomID 删除房间快照
func (r *gameSnapshotRepo) DeleteByRoomID(ctx context.Context, roomID string) error {
	return r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&models.GameSnapshot{}).Error
}

// FindByStatus 按状态分页查询
func (r *gameSnapshotRepo) FindByStatus(ctx context.Context, status string, p *Pagination) ([]*models.GameSnapshot, error) {
	var snapshots []*models.GameSnapshot
	query := r.db.WithContext(ctx).Model(&models.GameSnapshot{}).Where("status = ?", status)

	if err := query.Count(&p.Total).Error; err != nil {
		return nil, err
	}
	err := query.Scopes(Paginate(p)).
		Order("updated_at DESC").
		Find(&snapshots).Error
	return snapshots, err
}

// CountByStatus 统计各状态的房间数
func (r *gameSnapshotRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.GameSnapshot{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CleanupFinished 删除早于指定时间的已结束快照
func (r *gameSnapshotRepo) CleanupFinished(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", "finished", before).
		Delete(&models.GameSnapshot{})
	return result.RowsAffected, result.Error
}
