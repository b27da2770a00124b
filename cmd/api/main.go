package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/MiscMich/villabot-sub004/internal/adapters/http"
	"github.com/MiscMich/villabot-sub004/internal/bootstrap"
	"github.com/MiscMich/villabot-sub004/internal/config"
	"github.com/MiscMich/villabot-sub004/internal/observability/logging"
	"github.com/MiscMich/villabot-sub004/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("villabot-api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("villabot-api")
	router := httpadapter.NewRouter(
		app.AnswerUC,
		app.IngestUC,
		app.Docs,
		serverMetrics.Handler(),
		httpadapter.TrafficConfig{
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxInFlight:    cfg.APIMaxInFlight,
		},
	).WithObservability("villabot-api", serverMetrics).Handler()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for name, state := range app.Breakers.Snapshot() {
					serverMetrics.SetBreakerState("villabot-api", name, state.String())
				}
				for _, stats := range app.CacheStats() {
					serverMetrics.SetCacheResident("villabot-api", stats.Name, stats.Size)
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      serverMetrics.Middleware("villabot-api", router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
