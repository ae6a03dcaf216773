package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipbot/internal/bot"
	"clipbot/internal/config"
	"clipbot/internal/engine"
	"clipbot/internal/logging"
	"clipbot/internal/middleware"
	"clipbot/internal/probe"
	"clipbot/internal/session"
	"clipbot/internal/telegram"
	"clipbot/internal/transport"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Wire collaborators
	client := telegram.New(cfg.APIURL, cfg.BotToken)
	prober := probe.New(cfg.FFprobePath)
	eng := engine.New(cfg.FFmpegPath, cfg.WorkDir, prober)
	store := session.NewStore()
	b := bot.New(cfg, store, eng, client, client)

	// Admin HTTP surface
	srv := &http.Server{
		Addr:         ":" + cfg.AdminPort,
		Handler:      middleware.Logger(setupRouter(cfg)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logging.Info("Admin server listening on :%s", cfg.AdminPort)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("Admin server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	// Start graceful shutdown handler
	go handleShutdown(cancel, srv)

	// Start polling for updates
	events := make(chan transport.Event, 64)
	go func() {
		client.Poll(ctx, events)
		close(events)
	}()

	logging.Info("Bot started in %s", time.Since(startTime).Round(time.Millisecond))
	b.Run(ctx, events)
	logging.Info("Bot stopped")
}

func setupRouter(cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	return r
}

func handleShutdown(cancel context.CancelFunc, srv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logging.Info("Received %s, shutting down", sig)

	// Stop intake; jobs already running finish or hit their deadline.
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelTimeout()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Admin server shutdown error: %v", err)
	}
}
