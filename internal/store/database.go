package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/logger"
	"github.com/wfunc/party-game/internal/models"
	"github.com/wfunc/party-game/internal/repository"
	"gorm.io/gorm"
)

const backendDatabase = "database"

// DatabaseStore 数据库状态存储，每个房间一行快照，对局结束时写入结果记录
type DatabaseStore struct {
	repos *repository.Manager
}

// NewDatabaseStore 创建数据库存储
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{
		repos: repository.NewManager(db),
	}
}

// GetGame 读取快照
func (s *DatabaseStore) GetGame(ctx context.Context, roomID string) (state *game.GameState, err error) {
	start := time.Now()
	defer func() { logger.LogStoreOperation("get", backendDatabase, time.Since(start), err) }()

	return loadSnapshot(ctx, s.repos.GameSnapshot(), roomID)
}

// UpdateGame 在事务中合并并保存快照
func (s *DatabaseStore) UpdateGame(ctx context.Context, roomID string, state *game.GameState) (merged *game.GameState, err error) {
	start := time.Now()
	defer func() { logger.LogStoreOperation("update", backendDatabase, time.Since(start), err) }()

	err = s.repos.Transaction(ctx, func(tx *repository.Manager) error {
		prev, err := loadSnapshot(ctx, tx.GameSnapshot(), roomID)
		if err != nil {
			return err
		}
		merged = game.MergeState(prev, state)

		data, err := json.Marshal(merged)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDataIntegrity, "序列化游戏状态")
		}
		snapshot := &models.GameSnapshot{
			RoomID:    roomID,
			GameType:  string(merged.GameType),
			Status:    string(merged.GameStatus),
			StateData: string(data),
		}
		if err := tx.GameSnapshot().Upsert(ctx, snapshot); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "保存游戏快照")
		}

		// 只在第一次进入结束状态时记录结果
		if merged.GameStatus == game.StatusFinished && (prev == nil || prev.GameStatus != game.StatusFinished) {
			if err := tx.GameRecord().Create(ctx, newRecord(merged)); err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "保存对局结果")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// DeleteGame 删除快照，结果记录保留
func (s *DatabaseStore) DeleteGame(ctx context.Context, roomID string) (err error) {
	start := time.Now()
	defer func() { logger.LogStoreOperation("delete", backendDatabase, time.Since(start), err) }()

	if err := s.repos.GameSnapshot().DeleteByRoomID(ctx, roomID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, "删除游戏快照")
	}
	return nil
}

// Records 房间的历史对局结果
func (s *DatabaseStore) Records(ctx context.Context, roomID string, p *repository.Pagination) ([]*models.GameRecord, error) {
	if roomID == "" {
		return s.repos.GameRecord().FindRecent(ctx, p)
	}
	return s.repos.GameRecord().FindByRoomID(ctx, roomID, p)
}

func loadSnapshot(ctx context.Context, repo repository.GameSnapshotRepository, roomID string) (*game.GameState, error) {
	snapshot, err := repo.FindByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询游戏快照")
	}

	var state game.GameState
	if err := json.Unmarshal([]byte(snapshot.StateData), &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDataIntegrity, fmt.Sprintf("反序列化游戏快照: %s", roomID))
	}
	return &state, nil
}

func newRecord(s *game.GameState) *models.GameRecord {
	moves := 0
	switch {
	case s.Turn != nil:
		moves = len(s.Turn.GameHistory)
	case s.Round != nil:
		moves = len(s.Round.RoundHistory)
	}
	return &models.GameRecord{
		RoomID:     s.RoomID,
		GameType:   string(s.GameType),
		Players:    models.StringList(s.PlayerIDs),
		Winners:    models.StringList(s.Winners),
		EndReason:  string(s.EndReason),
		Moves:      moves,
		StartedAt:  s.CreatedAt,
		FinishedAt: s.LastUpdated,
	}
}
