package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/lastholder/button-system/config"
	"github.com/lastholder/button-system/db"
	"github.com/lastholder/button-system/handlers"
	"github.com/lastholder/button-system/middleware"
	"github.com/lastholder/button-system/realtime"
	"github.com/lastholder/button-system/repositories"
	api "github.com/lastholder/button-system/routes"
	"github.com/lastholder/button-system/services"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelMigrate()
	if err := db.Migrate(migrateCtx, dbConn); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database schema ensured")

	// Инициализация WebSocket Hub
	hub := realtime.NewHub(logger)
	go hub.Run()
	logger.Info("WebSocket Hub started")

	// Контекст фоновых задач (redis-мост, планировщик)
	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	// Нотификатор: напрямую в хаб или через redis pub/sub между инстансами
	var notifier services.Notifier = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		bridge := realtime.NewBridge(hub, rdb, logger)
		go bridge.Run(backgroundCtx)
		notifier = bridge
		logger.Info("redis event bridge enabled")
	}

	// Инициализация репозиториев
	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	playerRepo := repositories.NewPostgresPlayerRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	gameService := services.NewGameService(gameRepo, playerRepo, notifier, logger, cfg.GameStartOffset)
	eliminationService := services.NewEliminationService(
		services.NewSQLTxRunner(dbConn),
		gameRepo,
		playerRepo,
		notifier,
		logger,
	)
	logger.Info("Services initialized")

	// Планировщик: создаёт ежедневную игру и стартует просроченные
	go func() {
		ticker := time.NewTicker(cfg.SchedulerInterval)
		defer ticker.Stop()
		logger.Info("game scheduler started", slog.Duration("interval", cfg.SchedulerInterval))

		runOnce := func() {
			ctx, cancel := context.WithTimeout(backgroundCtx, 15*time.Second)
			defer cancel()
			if _, err := gameService.EnsureDailyGame(ctx, time.Now()); err != nil {
				logger.Error("scheduler: failed to ensure daily game", slog.Any("error", err))
			}
			if err := gameService.AutoStartDueGames(ctx, time.Now()); err != nil {
				logger.Error("scheduler: failed to auto-start games", slog.Any("error", err))
			}
		}

		// Run once immediately at startup, then on ticker
		runOnce()
		for {
			select {
			case <-backgroundCtx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	// Инициализация обработчиков HTTP
	identity := middleware.NewIdentity(cfg.JWTSecretKey, logger)
	gameHandler := handlers.NewGameHandler(gameService, eliminationService)
	adminHandler := handlers.NewAdminHandler(gameService)
	healthHandler := handlers.NewHealthHandler(dbConn)
	webSocketHandler := handlers.NewWebSocketHandler(hub, logger)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		identity,
		cfg.AdminKeyHash,
		gameHandler,
		adminHandler,
		healthHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancelBackground()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
