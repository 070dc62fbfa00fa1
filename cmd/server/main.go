package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/treerows/internal/api"
	"github.com/dgallion1/treerows/internal/config"
	"github.com/dgallion1/treerows/internal/rowserver"
	"github.com/dgallion1/treerows/internal/rowtree"
	"github.com/dgallion1/treerows/internal/source"
	"github.com/dgallion1/treerows/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Observability.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	latency := stats.NewLatency(cfg.StatsWindow)
	metrics := stats.NewMetrics(reg)

	// The row server starts unloaded and answers NotReady until the tree arrives.
	rows := rowserver.New(
		rowserver.WithDelay(cfg.RowDelay),
		rowserver.WithLogger(log.With("component", "rowserver")),
		rowserver.WithObserver(stats.Observers(latency, metrics)),
	)

	client := source.NewClient(cfg.DataURL, cfg.FetchTimeout, cfg.MaxFetchBytes, log.With("component", "source"))
	go func() {
		tree, err := loadTree(ctx, cfg, client)
		if err != nil {
			log.Error("failed to load tree", "error", err)
			return
		}
		if err := rows.Load(tree); err != nil {
			log.Error("failed to install tree", "error", err)
		}
	}()

	// Initialize HTTP server.
	srv := api.NewServer(rows, latency, reg, log, cfg)
	var handler http.Handler = srv
	if cfg.H2CEnabled {
		handler = h2c.NewHandler(srv, &http2.Server{})
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		client.Close()
	}()

	log.Info("starting treerows", "port", cfg.Port, "delay", cfg.RowDelay, "h2c", cfg.H2CEnabled)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// loadTree reads the fixture file when one is configured, otherwise fetches
// the tree from the data URL.
func loadTree(ctx context.Context, cfg config.Config, client *source.Client) (*rowtree.Tree, error) {
	if cfg.DataFile != "" {
		return source.NewFileLoader(nil).Load(cfg.DataFile)
	}
	return client.FetchWithRetry(ctx, cfg.FetchAttempts)
}
