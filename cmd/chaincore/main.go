package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lattica-ai/chaincore/internal/agents"
	"github.com/lattica-ai/chaincore/internal/dispatch"
	"github.com/lattica-ai/chaincore/internal/engine"
	"github.com/lattica-ai/chaincore/internal/logging"
	"github.com/lattica-ai/chaincore/internal/metrics"
	"github.com/lattica-ai/chaincore/internal/panel"
	"github.com/lattica-ai/chaincore/internal/scheduler"
	"github.com/lattica-ai/chaincore/internal/service"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/internal/streaming"
	"github.com/lattica-ai/chaincore/internal/validation"
	"github.com/lattica-ai/chaincore/pkg/mcp"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg := loadConfig()
	logger := logging.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("chaincore exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	publisher := streaming.NewStorePublisher(hub)
	collector := metrics.NewCollector(nil)
	registry := engine.NewCancelRegistry()

	invoker := agents.NewHTTPInvoker(st, nil, logger)
	executor, err := engine.NewChainExecutor(st, invoker, registry, publisher, collector, logger)
	if err != nil {
		return err
	}

	// Message delivery fans out to the in-process hub, the configured webhook
	// (if any), and live agent sessions once the MCP server exists.
	push := &dispatch.BoundNotifier{}
	notifiers := dispatch.MultiNotifier{dispatch.NewHubNotifier(hub), push}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, dispatch.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, nil, logger))
	}
	dispatcher := dispatch.NewDispatcher(st, notifiers, publisher, collector, logger)

	validator, err := validation.NewChainValidator(validation.NewStoreAgentLookup(st))
	if err != nil {
		return err
	}

	svc := service.NewService(st, executor, dispatcher, validator, logger)

	srv := mcp.NewChaincoreServer(mcp.ChaincoreServerDeps{Service: svc, Logger: logger})
	push.Bind(mcp.NewMessageNotifier(srv.Notifier()))

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(st, svc, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("scheduled run recovery failed", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	if cfg.PanelAddr != "" {
		pnl := panel.NewServer(cfg.PanelAddr, panel.Deps{Service: svc, Hub: hub, Logger: logger})
		pnl.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = pnl.Stop(stopCtx)
		}()
	}

	logger.Info("chaincore started", "db_path", cfg.DBPath, "in_memory", cfg.InMemory)

	serveErr := srv.Serve(ctx)
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error("mcp server stopped", "error", serveErr)
	}

	// Cancel in-flight executions, then drain pending message deliveries.
	registry.CancelAll()
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := svc.Shutdown(drainCtx); err != nil {
		logger.Warn("shutdown drain incomplete", "error", err)
	}

	logger.Info("chaincore stopped")
	return nil
}

func openStore(cfg Config) (store.Store, error) {
	if cfg.InMemory {
		return store.NewMemoryStore(), nil
	}
	dbFile := strings.TrimPrefix(cfg.DBPath, "file:")
	if dir := filepath.Dir(dbFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return store.NewLibSQLStore(cfg.DBPath)
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", "error", err)
	}
}
