package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/party-game/internal/config"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/logger"
	"github.com/wfunc/party-game/internal/middleware"
	"github.com/wfunc/party-game/internal/models"
	"github.com/wfunc/party-game/internal/repository"
	ws "github.com/wfunc/party-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GameService HTTP层用到的引擎操作
type GameService interface {
	Create(ctx context.Context, roomID string, gameType game.GameType, playerIDs []string, opts game.CreateOptions) (*game.GameState, error)
	View(ctx context.Context, roomID string) (*game.GameState, error)
	End(ctx context.Context, roomID string, reason game.EndReason) error
	Registry() *game.Registry
}

// RoomRunner 按房间串行执行
type RoomRunner interface {
	Do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error
	Rooms() int
}

// RecordSource 已结束对局的记录，只有数据库存储提供
type RecordSource interface {
	Records(ctx context.Context, roomID string, p *repository.Pagination) ([]*models.GameRecord, error)
}

// Dependencies 路由依赖，DB/Redis/Records 可为空
type Dependencies struct {
	Games     GameService
	Rooms     RoomRunner
	Hub       *ws.Hub
	WSRouter  *ws.Router
	Auth      *middleware.AuthMiddleware
	Records   RecordSource
	DB        *gorm.DB
	Redis     redis.UniversalClient
	WebSocket config.WebSocketConfig
	Logger    *zap.Logger
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	deps   Dependencies
	log    *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Auth == nil {
		deps.Auth = middleware.NewAuthMiddleware(nil)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	router := &Router{
		engine: engine,
		deps:   deps,
		log:    deps.Logger,
	}
	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	games := NewGameHandler(r.deps.Games, r.deps.Rooms, r.deps.Records, r.log)
	v1 := r.engine.Group("/api/v1")
	v1.Use(r.deps.Auth.OptionalAuth())
	{
		v1.GET("/games", games.ListGames)

		rooms := v1.Group("/rooms/:roomId")
		{
			rooms.POST("/game", games.Create)
			rooms.GET("/game", games.Get)
			rooms.DELETE("/game", games.End)
			rooms.GET("/records", games.Records)
		}
	}

	if r.deps.WSRouter != nil {
		wsHandler := NewWebSocketHandler(r.deps.WSRouter, r.deps.WebSocket, r.log)
		path := r.deps.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		r.engine.GET(path, r.deps.Auth.RequireAuth(), wsHandler.Connect)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// requestLogger 用zap记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// healthCheck 健康检查，检查已配置的数据库和Redis
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if r.deps.DB != nil {
		if sqlDB, err := r.deps.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "down"
			healthy = false
		} else {
			checks["database"] = "up"
		}
	}
	if r.deps.Redis != nil {
		if err := r.deps.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down"
			healthy = false
		} else {
			checks["redis"] = "up"
		}
	}

	resp := gin.H{"checks": checks}
	if r.deps.Rooms != nil {
		resp["rooms"] = r.deps.Rooms.Rooms()
	}
	if r.deps.Hub != nil {
		resp["connections"] = r.deps.Hub.GetOnlineCount()
	}

	if !healthy {
		resp["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["status"] = "healthy"
	c.JSON(http.StatusOK, resp)
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
