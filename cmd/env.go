package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

// pipelineEnv bundles the store and pipeline for command handlers.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

// initPipeline validates config, opens the configured store, migrates
// it, and builds the pipeline.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Webhook.URL == "" {
		return nil, eris.New("webhook.url is not configured (set PROSPECT_WEBHOOK_URL or config.yaml)")
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	p := pipeline.New(pipeline.SettingsFromConfig(cfg), st)
	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// openStore opens the store named by config without migrating, for
// read-only commands.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}
