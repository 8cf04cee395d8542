package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendis/handoff/internal/agent"
	"github.com/rendis/handoff/internal/bridge"
	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/escalation"
	"github.com/rendis/handoff/internal/logging"
	"github.com/rendis/handoff/internal/retrieval"
	"github.com/rendis/handoff/internal/scheduler"
	"github.com/rendis/handoff/internal/server"
	"github.com/rendis/handoff/internal/store"
	"github.com/rendis/handoff/internal/streaming"
	"github.com/rendis/handoff/internal/workflows"
	"github.com/rendis/handoff/pkg/mcp"
)

func main() {
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of HTTP")
	flag.Parse()

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger, *mcpMode); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(cfg Config, logger *slog.Logger, mcpMode bool) error {
	ctx := context.Background()

	// Store: libSQL on disk, or in-memory for ephemeral runs.
	var st store.Store
	if cfg.DBPath == "" || cfg.DBPath == "memory" {
		st = store.NewMemoryStore()
	} else {
		ls, err := store.NewLibSQLStore(cfg.DBPath)
		if err != nil {
			return err
		}
		st = ls
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()

	registry := engine.NewRegistry()
	if err := workflows.Register(registry); err != nil {
		return err
	}

	eng := engine.NewEngine(st, registry, hub, logger)
	br := bridge.New(eng, logger)

	rules, err := escalation.NewRules(cfg.Rules, logger)
	if err != nil {
		return err
	}
	escalator := escalation.New(br, rules, logger)

	retriever, err := retrieval.NewHTTPRetriever(cfg.SearchBaseURL, cfg.SearchAPIKey, 0)
	if err != nil {
		return err
	}
	pipeline := retrieval.NewPipeline(retriever, logger)

	dispatcher := agent.NewToolDispatcher(br, escalator, logger)

	if mcpMode {
		srv := mcp.NewHandoffServer(mcp.HandoffServerDeps{
			Engine:    eng,
			Bridge:    br,
			Escalator: escalator,
			Pipeline:  pipeline,
			Logger:    logger,
		})
		logger.Info("serving MCP tools over stdio")
		return srv.Serve(ctx)
	}

	chatAgent, err := agent.NewAnthropicAgent(cfg.AnthropicAPIKey, cfg.AnthropicModel, dispatcher, logger)
	if err != nil {
		return err
	}

	reporter, err := scheduler.NewStaleReporter(st, hub, cfg.StaleSchedule, cfg.staleAfter(), logger)
	if err != nil {
		return err
	}
	if err := reporter.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = reporter.Stop() }()

	api := server.New(server.Deps{
		Engine:      eng,
		Pipeline:    pipeline,
		Agent:       chatAgent,
		Dispatcher:  dispatcher,
		Hub:         hub,
		Logger:      logger,
		DefaultTopK: cfg.SearchTopK,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("handoff server listening", slog.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
