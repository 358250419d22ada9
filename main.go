package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roadside-monitor/be/clock"
	"roadside-monitor/be/config"
	"roadside-monitor/be/database"
	"roadside-monitor/be/handlers"
	"roadside-monitor/be/logger"
	"roadside-monitor/be/middleware"
	"roadside-monitor/be/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, "roadside-monitor")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	store, err := database.OpenStore(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	blobs, err := services.NewLocalBlobStore(cfg.Upload.Dir)
	if err != nil {
		zapLogger.Fatal("Failed to initialize upload storage", zap.Error(err))
	}

	cache, closeCache := newStatusCache(cfg.Redis, zapLogger)
	defer closeCache()

	uploadOptions := services.UploadOptions{
		MaxBytes:  cfg.Upload.MaxBytes,
		URLPrefix: cfg.Upload.URLPrefix,
	}
	deviceService := services.NewDeviceService(store, blobs, cache, clock.Real{}, zapLogger, uploadOptions)
	uploadService := services.NewUploadService(blobs, zapLogger, uploadOptions)

	if cfg.MQTT.Broker != "" {
		ingestor := services.NewMQTTIngestor(cfg.MQTT, deviceService, zapLogger)
		if err := ingestor.Start(); err != nil {
			zapLogger.Error("MQTT ingestion disabled", zap.Error(err))
		} else {
			defer ingestor.Stop()
		}
	}

	router := setupRouter(cfg, zapLogger,
		handlers.NewDeviceHandler(deviceService, zapLogger),
		handlers.NewEnvironmentHandler(deviceService, zapLogger),
		handlers.NewUploadHandler(deviceService, uploadService, cfg.Upload.MaxBytes, zapLogger))

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
}

// newStatusCache connects to Redis when REDIS_ADDR is set. Without it, or
// when Redis is unreachable at startup, status reads go to the database.
func newStatusCache(cfg config.RedisConfig, zapLogger *zap.Logger) (services.StatusCache, func()) {
	if cfg.Addr == "" {
		return services.NopStatusCache{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, status cache disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		client.Close()
		return services.NopStatusCache{}, func() {}
	}

	zapLogger.Info("Status cache connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.StatusTTL))
	return services.NewRedisStatusCache(client, cfg.StatusTTL), func() { client.Close() }
}

func setupRouter(cfg *config.Config, zapLogger *zap.Logger, deviceHandler *handlers.DeviceHandler, environmentHandler *handlers.EnvironmentHandler, uploadHandler *handlers.UploadHandler) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(zapLogger), middleware.RequestLogger(zapLogger))

	origins := make(map[string]bool, len(cfg.Server.CORSOrigins))
	allowAll := false
	for _, o := range cfg.Server.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// Requests with no origin (curl, devices)
			if origin == "" {
				return true
			}
			return allowAll || origins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, deviceHandler, environmentHandler, uploadHandler)
	return router
}
