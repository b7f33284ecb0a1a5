package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/openrelief/aidmatch/internal/api"
	"github.com/openrelief/aidmatch/internal/config"
	"github.com/openrelief/aidmatch/internal/engine"
	"github.com/openrelief/aidmatch/internal/events"
	"github.com/openrelief/aidmatch/internal/journal"
	"github.com/openrelief/aidmatch/internal/logging"
	"github.com/openrelief/aidmatch/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	store, err := repository.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := events.NewBroadcaster()

	eng := engine.New(engine.Config{
		AdminIdentity:     cfg.Admin.Identity,
		ProximityWeight:   cfg.Matcher.ProximityWeight,
		FulfillmentWeight: cfg.Matcher.FulfillmentWeight,
		UrgencyWeight:     cfg.Matcher.UrgencyWeight,
		QueryRadius:       cfg.Matcher.QueryRadius,
		AutoMatch:         cfg.Matcher.AutoMatch,
	}, broadcaster)

	if err := restoreState(ctx, eng, store); err != nil {
		logging.Fatalf("Failed to restore state: %v", err)
	}

	jrnl := journal.New(store, cfg.Journal.BufferSize)
	jrnl.Start(ctx)
	eng.SetSink(jrnl.Record)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Caller-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.API.RateLimit))

	handler := api.NewHandler(eng, broadcaster, store)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	broadcaster.Close() // Close all event streams gracefully
	jrnl.Stop()         // Drain pending writes before the store closes
	cancel()

	slog.Info("shutdown complete")
}

// restoreState replays the persisted entities into the engine so matching
// resumes where the previous process left off.
func restoreState(ctx context.Context, eng *engine.Engine, store repository.Store) error {
	reports, err := store.LoadReports(ctx)
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}
	offers, err := store.LoadOffers(ctx)
	if err != nil {
		return fmt.Errorf("load offers: %w", err)
	}
	requests, err := store.LoadRequests(ctx)
	if err != nil {
		return fmt.Errorf("load requests: %w", err)
	}
	matches, err := store.LoadMatches(ctx)
	if err != nil {
		return fmt.Errorf("load matches: %w", err)
	}

	if err := eng.Load(reports, offers, requests, matches); err != nil {
		return fmt.Errorf("rebuild engine state: %w", err)
	}

	slog.Info("state restored",
		"reports", len(reports),
		"offers", len(offers),
		"requests", len(requests),
		"matches", len(matches))
	return nil
}
