// Package main is the entrypoint for the DermaScan API server.
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

	"github.com/mkowalczyk/dermascan/internal/api"
	"github.com/mkowalczyk/dermascan/internal/api/handler"
	mw "github.com/mkowalczyk/dermascan/internal/api/middleware"
	"github.com/mkowalczyk/dermascan/internal/api/response"
	"github.com/mkowalczyk/dermascan/internal/cache"
	"github.com/mkowalczyk/dermascan/internal/config"
	"github.com/mkowalczyk/dermascan/internal/model"
	"github.com/mkowalczyk/dermascan/internal/pipeline"
	"github.com/mkowalczyk/dermascan/internal/relay"
	"github.com/mkowalczyk/dermascan/internal/storage"
	"github.com/mkowalczyk/dermascan/internal/store"
	"github.com/mkowalczyk/dermascan/internal/vision"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "models_dir", cfg.Models.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Image store
	images, err := storage.NewImages(cfg.Models.ImagesDir)
	if err != nil {
		return fmt.Errorf("create image store: %w", err)
	}

	// 6. Load ONNX models
	registry, err := model.Load(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	defer registry.Close()
	slog.Info("models loaded", "count", registry.Len())

	// 7. Create store and pipeline
	pgStore := store.NewPostgresStore(pool)

	classifiers := make([]pipeline.Classifier, 0, registry.Len())
	for _, m := range registry.Models() {
		classifiers = append(classifiers, m)
	}
	svc := pipeline.NewService(classifiers, vision.NewLocalizer(), pgStore, images, redisCache)

	// 8. Camera relay
	broadcaster := relay.NewBroadcaster()

	// 9. Build router with dependencies
	rateLimit := mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute)

	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache, registry),

		AnalyzeHandler: handler.NewAnalyzeHandler(svc),

		ListHistoryHandler:   handler.NewListHistoryHandler(svc),
		GetScanHandler:       handler.NewGetScanHandler(svc),
		DeleteScanHandler:    handler.NewDeleteScanHandler(svc),
		OriginalImageHandler: handler.NewOriginalImageHandler(svc),
		HeatmapImageHandler:  handler.NewHeatmapImageHandler(svc),

		CreatePatientHandler: handler.NewCreatePatientHandler(pgStore),
		ListPatientsHandler:  handler.NewListPatientsHandler(pgStore),
		GetPatientHandler:    handler.NewGetPatientHandler(pgStore),
		UpdatePatientHandler: handler.NewUpdatePatientHandler(pgStore),
		DeletePatientHandler: handler.NewDeletePatientHandler(pgStore),

		CreateMarkerHandler: handler.NewCreateMarkerHandler(pgStore),
		ListMarkersHandler:  handler.NewListMarkersHandler(pgStore),
		GetMarkerHandler:    handler.NewGetMarkerHandler(pgStore),
		UpdateMarkerHandler: handler.NewUpdateMarkerHandler(pgStore),
		DeleteMarkerHandler: handler.NewDeleteMarkerHandler(pgStore),

		CameraSendHandler:   handler.NewCameraSendHandler(broadcaster),
		CameraViewHandler:   handler.NewCameraViewHandler(broadcaster),
		CameraStatusHandler: handler.NewCameraStatusHandler(broadcaster),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity and reports how many
// models are loaded. A server with zero models still serves history, so
// models only degrade the status rather than fail it.
func healthHandler(s store.Store, c cache.Cache, registry *model.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"models":   "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if registry.Len() == 0 {
			checks["models"] = "none loaded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":        "ok",
			"services":      checks,
			"models_loaded": registry.Len(),
		})
	}
}
