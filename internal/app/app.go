package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"inboxdb/internal/retention"
	"inboxdb/pkg/config"
	"inboxdb/pkg/ingest"
	"inboxdb/pkg/progressor"
	"inboxdb/pkg/state"
	"inboxdb/pkg/store"
	"inboxdb/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st  store.Store
	orc *ingest.Orchestrator

	srv  *http.Server
	fsrv *fasthttp.Server
}

// New initializes resources that do not require a running context
// (store backend, validation rules). It does not start the retention
// scheduler or the HTTP server; call Run to start those and block
// until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	initValidation(eff)

	st, err := OpenStore(eff)
	if err != nil {
		return nil, err
	}

	// version-gated migrations (embedded backend only)
	if _, err := progressor.Run(context.Background(), st, version); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		st:        st,
		orc:       ingest.NewOrchestrator(st),
	}
	return a, nil
}

// OpenStore opens the configured backend. Pebble keeps its files under
// the canonical state layout; mongo connects with a bounded timeout.
// The importer CLI shares this so both binaries resolve storage the
// same way.
func OpenStore(eff config.EffectiveConfigResult) (store.Store, error) {
	switch eff.Config.Storage.Backend {
	case "", "pebble":
		if err := state.EnsureStateDirs(eff.DBPath); err != nil {
			return nil, fmt.Errorf("prepare db path %s: %w", eff.DBPath, err)
		}
		st, err := store.OpenPebble(state.PathsVar.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
		}
		return st, nil
	case "mongo":
		mc := eff.Config.Storage.Mongo
		db := mc.Database
		if db == "" {
			db = "inboxdb"
		}
		col := mc.Collection
		if col == "" {
			col = "messages"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := store.OpenMongo(ctx, mc.URI, db, col)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", eff.Config.Storage.Backend)
	}
}

// Run starts the retention scheduler and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	retCancel, err := retention.Start(ctx, a.st, a.eff.Config.Retention)
	if err != nil {
		return err
	}
	defer retCancel()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(sctx)
	}
	if a.fsrv != nil {
		_ = a.fsrv.Shutdown()
	}
	_ = a.st.Close()
}

// initValidation builds validation rules from config and sets them globally.
func initValidation(eff config.EffectiveConfigResult) {
	vr := validation.Rules{MaxLen: map[string]int{}, Enums: map[string][]string{}}
	vr.Required = append(vr.Required, eff.Config.Validation.Required...)
	for _, ml := range eff.Config.Validation.MaxLen {
		vr.MaxLen[ml.Path] = ml.Max
	}
	for _, e := range eff.Config.Validation.Enums {
		vr.Enums[e.Path] = append([]string{}, e.Values...)
	}
	validation.SetRules(vr)
}
