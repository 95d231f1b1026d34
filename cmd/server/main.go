package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/party-game/internal/api"
	"github.com/wfunc/party-game/internal/config"
	"github.com/wfunc/party-game/internal/database"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/game/catalog"
	"github.com/wfunc/party-game/internal/logger"
	"github.com/wfunc/party-game/internal/middleware"
	"github.com/wfunc/party-game/internal/room"
	"github.com/wfunc/party-game/internal/store"
	"github.com/wfunc/party-game/internal/utils"
	ws "github.com/wfunc/party-game/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db     *gorm.DB
	rdb    *redis.Client
	rooms  *room.Dispatcher
	hub    *ws.Hub
	engine *game.Engine
	http   *http.Server
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		envFile     = flag.String("env", ".env", "环境变量文件")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// .env 不存在时忽略
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("加载环境变量文件失败: %v\n", err)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("服务器初始化失败", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Error("服务器异常退出", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 按配置组装各组件
func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
	}

	if err := s.initStorage(); err != nil {
		return nil, err
	}
	games, err := store.New(cfg, s.db, s.rdb, s.logger)
	if err != nil {
		return nil, err
	}

	registry, err := catalog.NewRegistry(cfg.Game)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, "注册游戏失败")
	}

	s.rooms = room.NewDispatcher(room.Options{
		InboxSize:       cfg.Game.Room.InboxSize,
		IdleTimeout:     cfg.Game.Room.IdleTimeout,
		CleanupInterval: cfg.Game.Room.CleanupInterval,
	}, logger.GetModuleLogger("room"))
	s.hub = ws.NewHub(cfg.WebSocket, logger.GetModuleLogger("websocket"))
	s.engine = game.NewEngine(registry, games, s.hub, s.rooms, logger.GetModuleLogger("game"), catalog.EngineOptions(cfg.Game))
	s.rooms.Bind(s.engine)

	var auth *middleware.AuthMiddleware
	if cfg.Security.JWT.Enabled {
		jwt := utils.NewJWTManager(cfg.Security.JWT.Secret,
			time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour,
			time.Duration(cfg.Security.JWT.RefreshHours)*time.Hour)
		auth = middleware.NewAuthMiddleware(jwt)
	} else {
		s.logger.Warn("未启用JWT，用户身份取自请求参数")
		auth = middleware.NewAuthMiddleware(nil)
	}

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := api.Dependencies{
		Games:     s.engine,
		Rooms:     s.rooms,
		Hub:       s.hub,
		WSRouter:  ws.NewRouter(s.hub, s.engine, s.rooms, logger.GetModuleLogger("websocket")),
		Auth:      auth,
		DB:        s.db,
		WebSocket: cfg.WebSocket,
		Logger:    logger.GetModuleLogger("api"),
	}
	if s.rdb != nil {
		deps.Redis = s.rdb
	}
	if records, ok := store.DatabaseOf(games); ok {
		deps.Records = records
	}
	router := api.NewRouter(deps)

	s.http = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// initStorage 只连接存储驱动需要的后端
func (s *Server) initStorage() error {
	switch s.cfg.Store.Driver {
	case store.DriverDatabase:
		db, err := database.Open(&s.cfg.Database, logger.GetModuleLogger("database"))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
		}
		if s.cfg.Database.AutoMigrate {
			s.logger.Info("执行数据库自动迁移...")
			if err := database.AutoMigrate(db, s.logger); err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
			}
		}
		s.db = db
	case store.DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Redis.DialTimeout+time.Second)
		defer cancel()
		rdb, err := store.NewRedisClient(ctx, &s.cfg.Redis)
		if err != nil {
			return err
		}
		s.rdb = rdb
	}
	return nil
}

// Run 运行直到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("正在启动聚会游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("store", s.cfg.Store.Driver),
	)

	// 热更新只覆盖引擎参数和日志级别
	config.Watch(func(newCfg *config.Config) {
		s.engine.SetOptions(catalog.EngineOptions(newCfg.Game))
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已重新加载", zap.String("log_level", newCfg.Log.Level))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.hub.Run(gctx)
	})
	g.Go(func() error {
		return s.rooms.Run(gctx)
	})
	g.Go(func() error {
		s.logger.Info("HTTP服务启动", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("正在优雅关闭服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.close()
	return err
}

// close 关闭组件
func (s *Server) close() {
	s.rooms.Close()
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				s.logger.Error("关闭数据库失败", zap.Error(err))
			}
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("关闭Redis失败", zap.Error(err))
		}
	}
	s.logger.Info("所有组件已关闭")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("聚会游戏服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
