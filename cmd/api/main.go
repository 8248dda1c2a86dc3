package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/bookscan-go/internal/config"
	"github.com/anime-shed/bookscan-go/internal/container"
	"github.com/anime-shed/bookscan-go/internal/logger"
)

func main() {
	// A missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize dependency injection container
	c, err := container.NewContainer(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.WithError(err).Error("Failed to close stores")
		}
	}()

	// Create HTTP server with configurable timeouts
	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      c.Handler(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	if cfg.SessionTTL > 0 {
		go sweepSessions(sweepCtx, c, cfg.SessionTTL)
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"address":       cfg.ServerAddress(),
			"timeout":       cfg.RequestTimeout,
			"session_store": cfg.SessionStore,
			"archive":       cfg.ArchiveEnabled(),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweeper()

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// sweepSessions drops sessions idle for longer than ttl. It checks at a
// tenth of the ttl, but at most once a minute.
func sweepSessions(ctx context.Context, c *container.Container, ttl time.Duration) {
	interval := ttl / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := c.PurgeStaleSessions(ctx, ttl)
			if err != nil {
				logger.WithError(err).Warn("Session sweep failed")
				continue
			}
			if purged > 0 {
				logger.WithField("purged", purged).Info("Purged idle scan sessions")
			}
		}
	}
}
