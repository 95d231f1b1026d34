package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/repository"
	"go.uber.org/zap"
)

// GameHandler 房间游戏接口
type GameHandler struct {
	games   GameService
	rooms   RoomRunner
	records RecordSource
	logger  *zap.Logger
}

// NewGameHandler 创建游戏处理器
func NewGameHandler(games GameService, rooms RoomRunner, records RecordSource, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		games:   games,
		rooms:   rooms,
		records: records,
		logger:  logger,
	}
}

// CreateRequest 创建游戏请求
type CreateRequest struct {
	GameType  game.GameType      `json:"gameType" binding:"required"`
	PlayerIDs []string           `json:"playerIds" binding:"required,min=1"`
	Options   game.CreateOptions `json:"options"`
}

// Response 成功响应
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail 按错误码返回，非 AppError 视为内部错误
func (h *GameHandler) fail(c *gin.Context, err error) {
	appErr, isApp := apperrors.As(err)
	if !isApp {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("请求处理失败",
			zap.String("path", c.FullPath()),
			zap.Int("code", int(appErr.Code)),
			zap.Error(err))
	}
	c.JSON(status, apperrors.NewErrorResponse(appErr, c.GetHeader("X-Request-ID")))
}

// ListGames 支持的游戏类型
func (h *GameHandler) ListGames(c *gin.Context) {
	ok(c, http.StatusOK, h.games.Registry().List())
}

// Create 创建并开始游戏，已有进行中的游戏时返回409
func (h *GameHandler) Create(c *gin.Context) {
	roomID := c.Param("roomId")
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.New(apperrors.ErrInvalidParam, err.Error()))
		return
	}

	var state *game.GameState
	err := h.rooms.Do(c.Request.Context(), roomID, func(ctx context.Context) error {
		if _, err := h.games.Create(ctx, roomID, req.GameType, req.PlayerIDs, req.Options); err != nil {
			return err
		}
		var err error
		state, err = h.games.View(ctx, roomID)
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, state)
}

// Get 当前游戏状态（公开视图）
func (h *GameHandler) Get(c *gin.Context) {
	roomID := c.Param("roomId")
	var state *game.GameState
	err := h.rooms.Do(c.Request.Context(), roomID, func(ctx context.Context) error {
		var err error
		state, err = h.games.View(ctx, roomID)
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, state)
}

// End 强制结束并清除游戏
func (h *GameHandler) End(c *gin.Context) {
	roomID := c.Param("roomId")
	err := h.rooms.Do(c.Request.Context(), roomID, func(ctx context.Context) error {
		return h.games.End(ctx, roomID, game.EndReasonEnded)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Records 房间的历史对局
func (h *GameHandler) Records(c *gin.Context) {
	if h.records == nil {
		h.fail(c, apperrors.New(apperrors.ErrNotImplemented, "当前存储不保存对局记录"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	p := repository.NewPagination(page, size)

	records, err := h.records.Records(c.Request.Context(), c.Param("roomId"), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"records":   records,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}
