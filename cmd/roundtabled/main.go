// roundtabled is the deliberation service daemon: it loads configuration,
// assembles the agent registry and round-table engine, and serves the HTTP
// API plus a separate metrics endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/api"
	"github.com/agentcouncil/roundtable/config"
	"github.com/agentcouncil/roundtable/deliberation"
	"github.com/agentcouncil/roundtable/internal/metrics"
	"github.com/agentcouncil/roundtable/internal/server"
	"github.com/agentcouncil/roundtable/llm"
	"github.com/agentcouncil/roundtable/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector("roundtable", logger)

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey(),
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	client.SetRecorder(collector.RecordLLMCall)

	registry := agent.NewRegistry(logger, agent.WithPersistPath(cfg.Registry.PersistPath))

	table := deliberation.NewRoundTable(registry, client, deliberation.Config{
		ApprovalThreshold: cfg.Deliberation.ApprovalThreshold,
		DissentTolerance:  cfg.Deliberation.DissentTolerance,
		PhaseTimeout:      cfg.Deliberation.PhaseTimeout,
		MaxConcurrency:    cfg.Deliberation.MaxConcurrency,
		DisableCoreAgents: cfg.Deliberation.DisableCoreAgents,
		MinSeverity:       agent.Severity(cfg.Deliberation.MinSeverity),
	}, logger, deliberation.WithObserver(collector))

	var sessions *store.SessionStore
	if cfg.Redis.Enabled {
		sessions = store.NewSessionStore(store.SessionConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxContent: cfg.API.MaxTurnLength,
		}, logger)
		defer sessions.Close()
		if err := sessions.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, sessions degraded", zap.Error(err))
		}
	}

	var results *store.ResultStore
	if cfg.Database.Enabled {
		var err error
		results, err = store.NewResultStore(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("open result store: %w", err)
		}
	}

	apiServer := api.NewServer(cfg, registry, table, sessions, results, collector, logger)

	httpServer := server.NewManager(server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, apiServer.Handler(ctx), logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	logger.Info("api listening", zap.String("addr", httpServer.Addr()))

	var metricsServer *server.Manager
	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = server.NewManager(server.Config{
			Addr: fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		}, mux, logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("metrics listening", zap.String("addr", metricsServer.Addr()))
	}

	httpServer.WaitForShutdown()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
