package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/cache"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/handler"
	"backoffice/internal/identity"
	"backoffice/internal/middleware"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/websocket"
	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the schema and start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, db, err := boot(ctx)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("redis unavailable, account cache disabled", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	router := newRouter(cfg, db, cache.NewAccountCache(rdb, cfg.Redis.AccountTTL), hub)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// boot loads config, sets up logging and opens the database.
func boot(ctx context.Context) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.App.Env)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newAccountService(db *gorm.DB, accountCache *cache.AccountCache, maxRetries int) service.AccountService {
	return service.NewAccountService(
		repository.NewAccountRepository(db),
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db, maxRetries),
		accountCache,
	)
}

func newRouter(cfg *config.Config, db *gorm.DB, accountCache *cache.AccountCache, hub *websocket.Hub) *gin.Engine {
	// Repository -> Service -> Handler
	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewVariantRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db, cfg.Database.MaxRetries)

	ledger := service.NewStockLedger(productRepo, variantRepo, repository.NewStockAdjustmentRepository(db),
		txManager, hub, cfg.Ledger.LowStockThreshold)
	orderService := service.NewOrderService(repository.NewOrderRepository(db), productRepo, variantRepo,
		auditRepo, ledger, txManager, hub)
	catalogService := service.NewCatalogService(productRepo, variantRepo, auditRepo, ledger, txManager)
	accountService := newAccountService(db, accountCache, cfg.Database.MaxRetries)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(repository.NewStatisticsRepository(db))

	evaluator := service.NewEvaluator()
	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": hub.ClientCount()})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(hub, c, verifier, accountService, evaluator)
	})

	api := router.Group("/api", middleware.Authenticate(verifier, accountService))
	handler.NewAccountHandler(accountService, evaluator).RegisterRoutes(api)
	handler.NewCatalogHandler(catalogService, evaluator).RegisterRoutes(api)
	handler.NewInventoryHandler(ledger, evaluator).RegisterRoutes(api)
	handler.NewOrderHandler(orderService, evaluator).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, evaluator).RegisterRoutes(api)
	handler.NewStatisticsHandler(statisticsService, orderService, ledger, evaluator).RegisterRoutes(api)

	return router
}
