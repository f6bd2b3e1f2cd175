// Package cmd routes the assistant's entry points: the HTTP API server
// (default), the MCP stdio server, and version/help output.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/evscmms/assistant/internal/config"
	"github.com/evscmms/assistant/internal/log"
)

// Execute is the entry point called from main. It handles version and
// help before full initialization so they work even with broken config.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "mcp":
			return runMCP()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command: %s", os.Args[1])
		}
	}

	return runServe()
}

// newLogger builds the process logger from config. Logs go to stderr:
// stdout stays free for the MCP stdio transport.
func newLogger(cfg *config.Config) log.Logger {
	return log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
