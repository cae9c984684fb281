package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/internal/agent/providers"
	analysisengine "github.com/haasonsaas/finsight/internal/analysis"
	"github.com/haasonsaas/finsight/internal/config"
	"github.com/haasonsaas/finsight/internal/conversations"
	evaluationengine "github.com/haasonsaas/finsight/internal/evaluation"
	"github.com/haasonsaas/finsight/internal/gateway"
	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/internal/observability"
	analysistool "github.com/haasonsaas/finsight/internal/tools/analysis"
	"github.com/haasonsaas/finsight/internal/tools/calc"
	"github.com/haasonsaas/finsight/internal/tools/documents"
	evaluationtool "github.com/haasonsaas/finsight/internal/tools/evaluation"
	"github.com/haasonsaas/finsight/internal/tools/export"
	"github.com/haasonsaas/finsight/internal/tools/retrieval"
	"github.com/haasonsaas/finsight/internal/tools/visual"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the FinSight HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(nil)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "finsight",
		Endpoint:       tracingEndpoint(cfg),
		EnableInsecure: true,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	logger.Info("llm provider ready", "provider", provider.Name())

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	corpus := knowledge.NewMemoryCorpus()

	registry, err := buildRegistry(cfg, provider, corpus, logger)
	if err != nil {
		return err
	}
	logger.Info("tool registry populated", "tools", registry.Names())

	server, err := gateway.NewServer(cfg, gateway.Deps{
		Provider:  provider,
		Registry:  registry,
		Store:     store,
		Knowledge: corpus,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)
	return nil
}

// buildProvider instantiates the configured default LLM provider.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	pc := cfg.LLM.Providers[name]

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
			DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// buildStore opens the sqlite conversation store, or an in-memory one
// when no database path is configured.
func buildStore(cfg *config.Config) (conversations.Store, error) {
	if cfg.Database.Path == "" {
		return conversations.NewMemoryStore(), nil
	}
	return conversations.NewSQLiteStore(cfg.Database.Path)
}

// buildRegistry populates the tool registry: retrieval, calculation,
// visuals, document analysis, exports and the two engine facades.
func buildRegistry(cfg *config.Config, provider agent.LLMProvider, corpus *knowledge.MemoryCorpus, logger *slog.Logger) (*agent.ToolRegistry, error) {
	analyzer := analysisengine.NewEngine(provider, analysisengine.Config{
		MaxTokens: cfg.Agent.MaxTokens,
	}, logger)
	evaluator := evaluationengine.NewEngine(provider, evaluationengine.Config{
		MaxTokens: cfg.Agent.MaxTokens,
	}, logger)

	registry := agent.NewToolRegistry()
	tools := []agent.Tool{
		retrieval.NewSearchTool(corpus, cfg.Knowledge.SearchLimit),
		calc.New(),
		visual.NewChartTool(),
		visual.NewTableTool(),
		visual.NewImageTool(),
		documents.NewAnalyzeTool(corpus),
		export.New(),
		export.NewSpreadsheetTool(),
		analysistool.New(analyzer),
		evaluationtool.New(evaluator),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}

func tracingEndpoint(cfg *config.Config) string {
	if !cfg.Tracing.Enabled {
		return ""
	}
	return cfg.Tracing.Endpoint
}
