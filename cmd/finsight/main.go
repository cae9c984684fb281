// Package main is the CLI entry point for the FinSight conversational
// financial analysis service.
//
// Start the server:
//
//	finsight serve --config finsight.yaml
//
// API keys come from the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY)
// or the config file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "finsight",
		Short: "FinSight - conversational financial analysis engine",
		Long: `FinSight answers financial questions over a user's document corpus,
streaming progress, citations and canvas artifacts while a bounded
tool-calling loop drives retrieval, calculation and deep analysis.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
