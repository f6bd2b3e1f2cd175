package config

import (
	"fmt"
	"os"
)

// Validate checks configuration ranges. Returns sentinel errors usable
// with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.TopP < 0.0 || c.TopP > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidTopP, c.TopP)
	}
	if c.MaxOutputTokens < 1 || c.MaxOutputTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d", ErrInvalidMaxOutputTokens, c.MaxOutputTokens)
	}

	if c.MaxIterations < 1 || c.MaxIterations > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidMaxIterations, c.MaxIterations)
	}
	if c.ConversationTTLMinutes < 0 {
		return fmt.Errorf("%w: must be zero or positive, got %d", ErrInvalidConversationTTL, c.ConversationTTLMinutes)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}
	return nil
}
