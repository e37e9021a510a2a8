package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talk-trainer-server/internal/config"
	"talk-trainer-server/internal/evaluator"
	"talk-trainer-server/internal/handler"
	"talk-trainer-server/internal/llm"
	"talk-trainer-server/internal/logger"
	"talk-trainer-server/internal/messaging"
	"talk-trainer-server/internal/middleware"
	"talk-trainer-server/internal/persona"
	"talk-trainer-server/internal/repository"
	"talk-trainer-server/internal/service"
	"talk-trainer-server/migrations"
	"talk-trainer-server/pkg/limiter"
	"talk-trainer-server/pkg/migration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// PostgreSQL
	dbPool, err := setupDatabase(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()
	zlog.Info("Connected to PostgreSQL", zap.String("host", cfg.DBHost))

	if cfg.DBAutoMigrate {
		migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
		runner := migration.NewRunner(dbPool, migrations.FS, migrations.Path)
		if err := runner.Apply(migrateCtx); err != nil {
			cancelMigrate()
			zlog.Fatal("Failed to apply database migrations", zap.Error(err))
		}
		cancelMigrate()
	}

	// Persona cache: preloaded before the server accepts traffic.
	personaRepo := repository.NewPgPersonaRepository(dbPool, zlog)
	personaCache := persona.NewCache(personaRepo, zlog)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := personaCache.Init(initCtx); err != nil {
		cancelInit()
		zlog.Fatal("Failed to preload persona cache", zap.Error(err))
	}
	cancelInit()

	// Admission gates and the AI provider.
	turnGate, err := limiter.New("turn", cfg.TurnConcurrency)
	if err != nil {
		zlog.Fatal("Failed to create turn limiter", zap.Error(err))
	}
	evalGate, err := limiter.New("evaluation", cfg.EvalConcurrency)
	if err != nil {
		zlog.Fatal("Failed to create evaluation limiter", zap.Error(err))
	}
	provider, err := llm.NewProvider(cfg, zlog, turnGate, evalGate)
	if err != nil {
		zlog.Fatal("Failed to create AI provider", zap.Error(err))
	}

	// Redis result cache (optional).
	var resultCache service.ResultCache
	if !cfg.RedisDisabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zlog.Warn("Redis unavailable, evaluation results will not be cached", zap.Error(err))
		} else {
			resultCache = repository.NewRedisResultCache(redisClient, cfg.EvalResultTTL, zlog)
			defer redisClient.Close()
			zlog.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	// RabbitMQ evaluation events (optional).
	var publisher messaging.EvalEventPublisher = messaging.NoopEvalEventPublisher{}
	if !cfg.RabbitDisabled {
		rabbitConn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			zlog.Warn("RabbitMQ unavailable, evaluation events disabled", zap.Error(err))
		} else {
			defer rabbitConn.Close()
			p, err := messaging.NewRabbitEvalEventPublisher(rabbitConn, cfg.EvalEventsExchange, zlog)
			if err != nil {
				zlog.Fatal("Failed to create evaluation event publisher", zap.Error(err))
			}
			defer p.Close()
			publisher = p
			zlog.Info("Connected to RabbitMQ", zap.String("exchange", cfg.EvalEventsExchange))
		}
	}

	// Services and handler.
	criteriaRepo := repository.NewPgCriteriaRepository(dbPool, zlog)
	sessionEvaluator := evaluator.New(provider, cfg.EvalMaxRetries, zlog)
	trainerSvc := service.NewTrainerService(personaCache, provider, zlog)
	evalSvc := service.NewEvaluationService(personaCache, criteriaRepo, sessionEvaluator, resultCache, publisher, zlog)
	trainerHandler := handler.NewTrainerHandler(trainerSvc, evalSvc, zlog)

	// HTTP server (gin).
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.ZapLogger(zlog))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	trainerHandler.RegisterRoutes(router)

	// Prometheus middleware registers /metrics; applied after the routes.
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // evaluation calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP server shutdown error", zap.Error(err))
	}
	zlog.Info("Server stopped")
}

func setupDatabase(cfg *config.Config, zlog *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
