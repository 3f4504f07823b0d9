package main

import (
	"context"

	"github.com/hilops/titleflow/internal/audit"
	"github.com/hilops/titleflow/internal/engine"
	"github.com/hilops/titleflow/internal/eventbus"
	"github.com/hilops/titleflow/internal/notify"
	"github.com/hilops/titleflow/internal/storage/sqlite"
)

// openStore opens the configured database.
func openStore(ctx context.Context) (*sqlite.Store, error) {
	return sqlite.New(ctx, cfg.DBPath)
}

// buildDispatcher wires the notification path. publisher may be nil for CLI
// commands that have no realtime hub.
func buildDispatcher(store *sqlite.Store, publisher notify.Publisher) *notify.Dispatcher {
	return notify.NewDispatcher(store, notify.NewStoreDirectory(store), publisher, notify.Config{
		PublishTimeout: cfg.PublishTimeout,
		Role:           cfg.NotifyRole,
	}, logger)
}

// buildEngine wires the action engine with the side channels the command
// needs. bus may be nil for one-shot commands.
func buildEngine(store *sqlite.Store, bus *eventbus.Bus) *engine.Engine {
	recorder := audit.NewRecorder(store, logger)

	var orch *engine.OrchestratorClient
	if cfg.OrchestratorURL != "" {
		orch = engine.NewOrchestratorClient(cfg.OrchestratorURL, logger)
	}

	return engine.New(store, recorder, engine.Options{
		Bus:          bus,
		Orchestrator: orch,
		Policy:       cfg.PolicyHours,
	}, logger)
}
