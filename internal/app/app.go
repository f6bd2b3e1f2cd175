// Package app assembles the assistant's components into one container.
//
// Setup wires configuration, database, model client, registry, and
// orchestrator together; Close releases everything in reverse order.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evscmms/assistant/internal/api"
	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/conversation"
	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/orchestrator"
	"github.com/evscmms/assistant/internal/registry"
)

// closeTimeout bounds the trace flush during shutdown.
const closeTimeout = 5 * time.Second

// sweepInterval is how often idle conversations are checked against
// the configured TTL.
const sweepInterval = 10 * time.Minute

// App is the assembled application.
type App struct {
	Logger log.Logger

	Pool         *pgxpool.Pool
	Registry     *registry.Registry
	Store        *conversation.Store
	Trace        *calltrace.Log
	Orchestrator *orchestrator.Orchestrator
	API          *api.Server

	otelShutdown func(context.Context) error
	sweepStop    chan struct{}
	sweepDone    chan struct{}
}

// startSweeper runs the time-based eviction policy: every interval,
// conversations idle longer than ttl are destroyed (and their traces
// dropped via the store's eviction callback).
func (a *App) startSweeper(ttl, interval time.Duration) {
	a.sweepStop = make(chan struct{})
	a.sweepDone = make(chan struct{})
	go func() {
		defer close(a.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := a.Store.EvictBefore(time.Now().Add(-ttl)); n > 0 {
					a.Logger.Info("evicted idle conversations", "count", n)
				}
			case <-a.sweepStop:
				return
			}
		}
	}()
}

// Close releases all resources. Safe to call on a partially built App.
func (a *App) Close() error {
	var firstErr error

	if a.sweepStop != nil {
		close(a.sweepStop)
		<-a.sweepDone
		a.sweepStop = nil
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := a.otelShutdown(ctx); err != nil {
			firstErr = err
		}
		cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}

	if a.Logger != nil {
		a.Logger.Info("application shut down")
	}
	return firstErr
}
