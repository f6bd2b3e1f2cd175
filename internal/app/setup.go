package app

import (
	"context"
	"fmt"

	"github.com/evscmms/assistant/internal/api"
	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/config"
	"github.com/evscmms/assistant/internal/conversation"
	"github.com/evscmms/assistant/internal/database"
	"github.com/evscmms/assistant/internal/forecast"
	"github.com/evscmms/assistant/internal/functions"
	"github.com/evscmms/assistant/internal/gateway/postgres"
	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/model"
	"github.com/evscmms/assistant/internal/observability"
	"github.com/evscmms/assistant/internal/orchestrator"
)

// systemInstruction steers the model toward the maintenance domain and
// the registered functions. One function call per distinct need.
const systemInstruction = "You are the spare-parts assistant for an EV " +
	"service center network. When the user asks about a part, call " +
	"get_spare_parts once; about stock, get_inventory; about past " +
	"consumption, get_usage_history; about future demand, " +
	"forecast_demand. Call each function at most once per request and " +
	"answer from the results."

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelShutdown = shutdown
	}

	connURL := cfg.PostgresURL()
	if err := database.Migrate(connURL, logger); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := database.Open(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.Pool = pool

	gw := postgres.New(pool, logger)

	client, err := model.NewClient(ctx, model.Config{
		APIKey:            cfg.APIKey(),
		Model:             cfg.ModelName,
		SystemInstruction: systemInstruction,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	engine := forecast.New(gw, client, logger)

	reg, err := functions.NewRegistry(gw, engine)
	if err != nil {
		return nil, fmt.Errorf("building function registry: %w", err)
	}
	a.Registry = reg

	a.Trace = calltrace.NewLog()
	a.Store = conversation.NewStore(conversation.Config{
		MaxConversations: cfg.MaxConversations,
		OnEvict:          a.Trace.Drop, // the trace dies with its conversation
		Logger:           logger,
	})
	if ttl := cfg.ConversationTTL(); ttl > 0 {
		a.startSweeper(ttl, sweepInterval)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Registry:      reg,
		Model:         client,
		Store:         a.Store,
		Trace:         a.Trace,
		Logger:        logger,
		MaxIterations: cfg.MaxIterations,
		CallTimeout:   cfg.CallTimeout(),
		QueueDepth:    cfg.QueueDepth,
		HistoryWindow: cfg.HistoryWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	srv, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Runner:     orch,
		Store:      a.Store,
		Trace:      a.Trace,
		TrustProxy: cfg.TrustProxy,
		RateBurst:  cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.API = srv

	logger.Info("application initialized", "model", cfg.ModelName)
	return a, nil
}
