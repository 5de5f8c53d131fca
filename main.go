package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"healthboard/internal/config"
	"healthboard/internal/container"
	"healthboard/internal/handler"
	"healthboard/internal/middleware"
	"healthboard/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	c         *container.Container
	server    *http.Server
	hubCancel context.CancelFunc
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Stop accepting new requests first.
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the sync scheduler; an in-flight sync pass finishes on its own.
	if r.c.Sync != nil {
		r.c.Sync.Stop()
		r.log.Info("Sync scheduler stopped")
	}

	// Close the push hub.
	if r.hubCancel != nil {
		r.hubCancel()
	}

	if r.c.RedisClient != nil {
		if err := r.c.RedisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errs = append(errs, fmt.Errorf("Redis close: %w", err))
		} else {
			r.log.Info("Redis connection closed")
		}
	}

	if r.c.DB != nil {
		r.c.DB.Close()
		r.log.Info("Database connection pool closed")
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting healthboard server")

	ctx := context.Background()
	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Run the push hub for the life of the process.
	hubCtx, hubCancel := context.WithCancel(ctx)
	go c.Hub.Run(hubCtx)

	// Start the sync scheduler (daily sync plus buffered request sweeps).
	if err := c.Sync.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start sync scheduler")
	}

	router := setupRouter(c)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	resources := &Resources{
		c:         c,
		server:    server,
		hubCancel: hubCancel,
		log:       log,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.Config
	log := c.Logger

	r := chi.NewRouter()

	corsConfig := &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	healthHandler := handler.NewHealthHandler(cfg, log)
	dashboardHandler := handler.NewDashboardHandler(c.Dashboard, log)
	refreshHandler := handler.NewRefreshHandler(c.Sync, c.Hub, log)
	wsHandler := handler.NewWSHandler(c.Hub, cfg, log)

	r.Get("/health", healthHandler.Check)
	r.Get("/ws", wsHandler.Serve)

	r.Route("/api", func(r chi.Router) {
		// Reads get a request timeout; /api/refresh responds immediately
		// anyway because syncs run in the background.
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		r.Get("/status", healthHandler.Status)
		r.Get("/dashboard", dashboardHandler.GetDashboard)
		r.Post("/refresh", refreshHandler.RequestRefresh)
	})

	return r
}
