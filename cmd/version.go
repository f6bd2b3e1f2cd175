package cmd

import (
	"fmt"
	"os"

	"github.com/evscmms/assistant/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func printVersionInfo() error {
	fmt.Printf("evscmms-assistant %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Temperature: %.2f\n", cfg.Temperature)
	fmt.Printf("  Max output tokens: %d\n", cfg.MaxOutputTokens)
	fmt.Printf("  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Printf("  Listen address: %s\n", cfg.ListenAddr)

	// Never print the full key.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && len(key) >= 8 {
		fmt.Printf("  GEMINI_API_KEY: %s...%s (configured)\n", key[:4], key[len(key)-4:])
	} else if key != "" {
		fmt.Println("  GEMINI_API_KEY: (configured)")
	} else {
		fmt.Println("  GEMINI_API_KEY: not set")
		fmt.Println()
		fmt.Println("Hint: export GEMINI_API_KEY=your-api-key")
	}

	return nil
}

func printHelp() {
	fmt.Print(`evscmms-assistant - function-calling assistant for EV spare-parts maintenance

Usage:
  assistant [command]

Commands:
  serve      Start the HTTP API server (default)
  mcp        Start the MCP server on stdio
  version    Show version and configuration
  help       Show this help

Environment:
  GEMINI_API_KEY            Gemini API key (required)
  DATABASE_URL              PostgreSQL URL (overrides assistant_postgres_* settings)
  ASSISTANT_LISTEN_ADDR     HTTP listen address (default :8080)
  ASSISTANT_LOG_LEVEL       debug | info | warn | error (default info)
  ASSISTANT_TRACING_ENABLED Export OTLP traces (default false)
`)
}
