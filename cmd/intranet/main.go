package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/czhao39/ion/api/swagger"
	"github.com/czhao39/ion/internal/handler"
	"github.com/czhao39/ion/internal/middleware"
	"github.com/czhao39/ion/internal/repository"
	"github.com/czhao39/ion/internal/service"
	"github.com/czhao39/ion/pkg/cache"
	"github.com/czhao39/ion/pkg/config"
	"github.com/czhao39/ion/pkg/database"
	"github.com/czhao39/ion/pkg/logger"
	corsmiddleware "github.com/czhao39/ion/pkg/middleware/cors"
	reqidmiddleware "github.com/czhao39/ion/pkg/middleware/requestid"
)

// @title Ion Eighth Period API
// @version 1.0.0
// @description Eighth period activity signup engine
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, roster cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	scheduledRepo := repository.NewScheduledActivityRepository(db)
	signupRepo := repository.NewSignupRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})

	catalogSvc := service.NewCatalogService(blockRepo, activityRepo, scheduledRepo, signupRepo, cacheRepo, service.CatalogConfig{
		DayCutoverHour: cfg.Eighth.DayCutoverHour,
		RosterCacheTTL: cfg.Eighth.RosterCacheTTL,
	}, logr)
	catalogSvc.SetMetrics(metricsSvc)

	eligibilitySvc := service.NewEligibilityService(signupRepo, activityRepo, userRepo, cfg.Eighth.PresignDays, logr)
	signupSvc := service.NewSignupService(signupRepo, scheduledRepo, userRepo, blockRepo, eligibilitySvc, catalogSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	blockHandler := handler.NewBlockHandler(catalogSvc, cfg.Eighth.ExportEnabled)
	activityHandler := handler.NewActivityHandler(catalogSvc)
	signupHandler := handler.NewSignupHandler(signupSvc, metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	eighth := api.Group("/eighth", middleware.JWT(authSvc))
	eighth.GET("/blocks", blockHandler.List)
	eighth.GET("/blocks/current", blockHandler.Current)
	eighth.GET("/blocks/:id", blockHandler.Roster)
	eighth.PUT("/blocks/:id/lock", middleware.RequireEighthAdmin(), blockHandler.Lock)
	eighth.DELETE("/blocks/:id/lock", middleware.RequireEighthAdmin(), blockHandler.Unlock)
	eighth.GET("/blocks/:id/export", middleware.RequireEighthAdmin(), blockHandler.Export)
	eighth.GET("/activities", activityHandler.List)
	eighth.GET("/activities/:id", activityHandler.Get)
	eighth.POST("/activities/:id/favorite", activityHandler.Favorite)
	eighth.POST("/signup", signupHandler.SignUp)
	eighth.POST("/unsignup", signupHandler.Unsignup)
	eighth.GET("/signups", signupHandler.List)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
