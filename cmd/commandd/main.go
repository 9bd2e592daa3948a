// Package main is the entry point for the command service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatforge/commandd/internal/api"
	"github.com/chatforge/commandd/internal/cmdstore"
	"github.com/chatforge/commandd/internal/compiler"
	"github.com/chatforge/commandd/internal/config"
	"github.com/chatforge/commandd/internal/notifier"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting commandd",
		slog.String("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
	)

	// Initialize command store based on configuration
	var store cmdstore.CommandStore
	switch cfg.StoreType {
	case "redis":
		redisStore, err := cmdstore.NewRedisStore(&cmdstore.RedisConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			store = cmdstore.NewMemoryStore()
		} else {
			store = redisStore
			logger.Info("using Redis command store", slog.String("url", cfg.RedisURL))
		}
	default:
		store = cmdstore.NewMemoryStore()
		logger.Info("using in-memory command store")
	}
	defer store.Close()

	// Initialize the reload notifier. Only backends with a readable log feed
	// the poll/SSE endpoints; AMQP delivers through the broker instead.
	var publisher notifier.Publisher
	var events notifier.EventLog
	switch cfg.NotifierType {
	case "amqp":
		amqpNotifier, err := notifier.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("failed to connect to AMQP, falling back to memory notifier", "error", err)
			mem := notifier.NewMemoryNotifier()
			publisher, events = mem, mem
		} else {
			publisher = amqpNotifier
			logger.Info("using AMQP reload notifier", slog.String("exchange", cfg.AMQPExchange))
		}
	case "memory":
		mem := notifier.NewMemoryNotifier()
		publisher, events = mem, mem
		logger.Info("using in-memory reload notifier")
	default:
		redisNotifier, err := notifier.NewRedisNotifier(&notifier.RedisNotifierConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			MaxLen:   cfg.ReloadMaxLen,
		})
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory notifier", "error", err)
			mem := notifier.NewMemoryNotifier()
			publisher, events = mem, mem
		} else {
			publisher, events = redisNotifier, redisNotifier
			logger.Info("using Redis Streams reload notifier", slog.String("url", cfg.RedisURL))
		}
	}
	defer publisher.Close()

	// Initialize the graph validator
	graphs, err := compiler.NewGraphCheck()
	if err != nil {
		logger.Error("failed to compile graph schema", "error", err)
		os.Exit(1)
	}

	// Initialize the compile pipeline and API
	pipeline := compiler.New(store, publisher, graphs, logger)
	handlers := api.NewHandlers(pipeline, store, events, cfg, logger)
	server := api.NewServer(handlers)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
