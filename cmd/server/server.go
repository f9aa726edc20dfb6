package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/handlers"
	"github.com/3Eeeecho/go-docspace/internal/pkg/cache"
	"github.com/3Eeeecho/go-docspace/internal/pkg/lock"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"github.com/3Eeeecho/go-docspace/internal/router"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"github.com/3Eeeecho/go-docspace/internal/services/export"
	"github.com/3Eeeecho/go-docspace/internal/services/quota"
	"github.com/3Eeeecho/go-docspace/internal/setup"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	cfg         *config.Config
	httpServer  *http.Server
	db          *gorm.DB
	redisClient *redis.Client
	queue       mq.JobQueue
	exporter    export.Service
}

// NewServer 负责构建所有依赖
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	// 初始化数据库连接
	mysqlDB, err := setup.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
	}

	// 初始化 Redis 连接
	redisClient, err := setup.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		setup.CloseMySQLDB(mysqlDB)
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	store, err := setup.InitStorage(ctx, cfg)
	if err != nil {
		setup.CloseRedis(redisClient)
		setup.CloseMySQLDB(mysqlDB)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	//  初始化 Repositories
	folderRepo := repositories.NewCachedFolderRepository(
		repositories.NewFolderRepository(mysqlDB), cfg.Access.FolderCacheSize, cfg.Access.FolderCacheTTL)
	fileRepo := repositories.NewFileRepository(mysqlDB)
	versionRepo := repositories.NewFileVersionRepository(mysqlDB)
	spaceRepo := repositories.NewTenantSpaceRepository(mysqlDB)
	grantRepo := repositories.NewGrantRepository(mysqlDB)
	jobRepo := repositories.NewExportJobRepository(mysqlDB)
	historyRepo := repositories.NewAccessHistoryRepository(mysqlDB)
	tm := repositories.NewTransactionManager(mysqlDB)

	//初始化其他服务
	locker := lock.NewRedisLocker(redisClient)
	queue := mq.NewRedisQueue(redisClient, cfg.Export.Queue)
	statusCache := cache.NewRedisCache(redisClient)

	//  初始化 Services
	resolver := access.NewResolver(folderRepo, fileRepo, grantRepo, cfg.Access.MaxDepth)
	grantManager := access.NewGrantManager(grantRepo, folderRepo, fileRepo, tm, locker, cfg.Access.GrantLockTTL)
	quotaManager := quota.NewManager(spaceRepo)
	spaceService := explorer.NewSpaceService(spaceRepo, quotaManager)
	folderService := explorer.NewFolderService(folderRepo, fileRepo, spaceRepo, tm, resolver, grantManager, quotaManager, cfg.Access.MaxDepth)
	fileService := explorer.NewFileService(fileRepo, versionRepo, folderRepo, spaceRepo, tm, store, resolver, quotaManager, locker,
		explorer.NewAuditor(historyRepo), cfg.Storage.PresignedURLExpiry, cfg.Access.GrantLockTTL)
	exportService := export.NewService(jobRepo, folderRepo, fileRepo, resolver, store, queue, statusCache, export.Options{
		URLTTL:         cfg.Export.URLTTL,
		StaleAfter:     cfg.Export.StaleAfter,
		TempDir:        cfg.Export.TempDir,
		StatusCacheTTL: cfg.Export.StatusCacheTTL,
		MaxDepth:       cfg.Access.MaxDepth,
	})

	// 初始化 Gin 引擎和注册路由
	engine := router.InitRouter(cfg, &router.Handlers{
		Space:  handlers.NewSpaceHandler(spaceService),
		Folder: handlers.NewFolderHandler(folderService),
		File:   handlers.NewFileHandler(fileService),
		Grant:  handlers.NewGrantHandler(grantManager, resolver),
		Export: handlers.NewExportHandler(exportService),
	})

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		db:          mysqlDB,
		redisClient: redisClient,
		queue:       queue,
		exporter:    exportService,
	}, nil
}

// Run 启动服务器和 Worker，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	// 确保在应用关闭时，所有连接都被释放
	defer setup.CloseMySQLDB(s.db)
	defer setup.CloseRedis(s.redisClient)

	// 启动所有后台 Worker
	workers := worker.StartAllWorkers(ctx, &s.cfg.Export, s.queue, s.exporter)

	// 启动 HTTP 服务器
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	<-stopChan
	logger.Info("Shutting down server...")

	// 优雅关机：先停止接收请求，再停止 worker
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	workers.Stop()
	if err := s.queue.Close(); err != nil {
		logger.Warn("Error closing export queue", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}
