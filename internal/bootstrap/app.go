// Package bootstrap wires configuration, infrastructure and handlers into a
// runnable application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-rooms/internal/handler/http"
	wsHandler "collaborative-rooms/internal/handler/websocket"

	"collaborative-rooms/internal/auth"
	"collaborative-rooms/internal/hub"
	gormpersistence "collaborative-rooms/internal/infra/persistence/gorm"
	"collaborative-rooms/internal/infra/setup"
	redisstate "collaborative-rooms/internal/infra/state/redis"
	"collaborative-rooms/internal/middleware"
	"collaborative-rooms/internal/worker"
)

// Config holds everything read from the environment.
type Config struct {
	DBUser              string
	DBPassword          string
	DBHost              string
	DBPort              string
	DBName              string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	TokenSecret         string
	ServerPort          string
	LogLevel            string
	AppEnv              string
	AllowedOrigin       string
	KeyPrefix           string
	RateLimitMax        int
	RateLimitWindow     time.Duration
	MaintenanceInterval time.Duration
}

// LoadConfig reads configuration from the environment, with .env as a
// convenience for development.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:              os.Getenv("DB_USER"),
		DBPassword:          os.Getenv("DB_PASSWORD"),
		DBHost:              os.Getenv("DB_HOST"),
		DBPort:              os.Getenv("DB_PORT"),
		DBName:              os.Getenv("DB_NAME"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		TokenSecret:         os.Getenv("TOKEN_SECRET"),
		ServerPort:          os.Getenv("SERVER_PORT"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		AppEnv:              os.Getenv("APP_ENV"),
		AllowedOrigin:       os.Getenv("ALLOWED_ORIGIN"),
		KeyPrefix:           os.Getenv("REDIS_KEY_PREFIX"),
		RateLimitMax:        100,
		RateLimitWindow:     time.Second,
		MaintenanceInterval: 30 * time.Second,
	}
	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	if v := os.Getenv("MAINTENANCE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAINTENANCE_INTERVAL %q: %w", v, err)
		}
		cfg.MaintenanceInterval = d
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "http://localhost:3000"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "cr:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("environment variable TOKEN_SECRET must be set")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL %q, using info", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// App bundles the application's components for startup and shutdown.
type App struct {
	Config       *Config
	Log          *logrus.Logger
	DB           *gorm.DB
	RedisClient  *redis.Client
	AsynqClient  *asynq.Client
	WorkerServer *worker.Server
	Hub          *hub.Hub
	HTTPServer   *http.Server
}

// NewApp initializes every component. Nothing is started yet.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	log.Info("Configuration loaded")

	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("init DB: %w", err)
	}
	archiveRepo := gormpersistence.NewOperationRepository(db)
	if err := archiveRepo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}
	log.Info("Database initialized")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisOpt)

	stateRepo := redisstate.NewStateRepository(redisClient, cfg.KeyPrefix)
	sink := worker.NewAsynqSink(asynqClient)
	hubInstance := hub.NewHub(stateRepo, archiveRepo, sink, cfg.MaintenanceInterval)

	verifier, err := auth.NewVerifier(cfg.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}

	workerServer := worker.NewServer(redisOpt, archiveRepo, log)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(corsMiddleware(cfg.AllowedOrigin))
	router.Use(middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow))

	roomHandler := httpHandler.NewRoomHandler(hubInstance)
	socketHandler := wsHandler.NewHandler(hubInstance, verifier, cfg.AllowedOrigin)

	api := router.Group("/api/rooms/:roomId")
	{
		api.GET("/document", roomHandler.GetDocument)
		api.GET("/operations", roomHandler.GetOperations)
		api.GET("/history", roomHandler.GetHistory)
		api.GET("/export", roomHandler.Export)
		api.POST("/lock", roomHandler.Lock)
		api.POST("/unlock", roomHandler.Unlock)
		api.POST("/kick", roomHandler.Kick)
	}
	router.GET("/ws/room/:roomId", socketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:       cfg,
		Log:          log,
		DB:           db,
		RedisClient:  redisClient,
		AsynqClient:  asynqClient,
		WorkerServer: workerServer,
		Hub:          hubInstance,
		HTTPServer:   httpServer,
	}, nil
}

// Start launches the worker and the HTTP server.
func (a *App) Start() {
	go a.WorkerServer.Start()

	go func() {
		a.Log.Infof("HTTP server listening on %s", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
}

// Shutdown stops components in dependency order, persisting every live room
// before connections close.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("HTTP server shutdown: %v", err)
	}

	a.Hub.Shutdown()
	a.WorkerServer.Shutdown()

	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Asynq client close: %v", err)
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Redis close: %v", err)
	}
	a.Log.Info("Shutdown complete")
}

// corsMiddleware answers preflight requests and stamps the allowed origin.
func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs each HTTP request with latency and status.
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"client_ip": c.ClientIP(),
			"latency":   time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		} else if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Info("Request handled")
		}
	}
}
