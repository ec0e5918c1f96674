// Package appwire assembles the shared component graph (storage, crypto,
// credential store, registry, binding manager, auth orchestrator,
// execution engine) that every OpenAct entry point — the CLI, the HTTP API
// façade, and the tool protocol front — bootstraps identically from
// process configuration (spec.md §6's environment variables).
package appwire

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/appconfig"
	"github.com/aionixone/openact-sub001/pkg/authorchestrator"
	"github.com/aionixone/openact-sub001/pkg/binding"
	"github.com/aionixone/openact-sub001/pkg/credstore"
	"github.com/aionixone/openact-sub001/pkg/crypto"
	"github.com/aionixone/openact-sub001/pkg/execengine"
	"github.com/aionixone/openact-sub001/pkg/metrics"
	"github.com/aionixone/openact-sub001/pkg/registry"
	"github.com/aionixone/openact-sub001/pkg/storage"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// App holds every long-lived, process-wide collaborator. It is constructed
// once at startup and passed by reference. Credentials is the SQL store
// itself; Bootstrap does not wrap it in the credstore.CachingStore overlay.
// The tool protocol's governance semaphore, built in cmd/openact-mcp, is
// the only other process-wide singleton (spec.md §9).
type App struct {
	Config *appconfig.Config
	DB     *storage.DB

	Crypto      *crypto.Service
	Credentials credstore.Store
	Connections registry.ConnectionRepository
	Actions     registry.ActionRepository
	Bindings    binding.Store

	Registry       *registry.Registry
	BindingManager *binding.Manager
	Orchestrator   *authorchestrator.Orchestrator
	ExecutionStore execengine.Store
	Engine         *execengine.Engine
	Metrics        *metrics.Registry
}

// Bootstrap reads process configuration and wires every component against
// a SQL-backed persistence layer. Callers (CLI, server, mcp front) should
// call this once at process start and share the returned *App.
func Bootstrap() (*App, error) {
	cfg := appconfig.Load()

	db, err := storage.Open(cfg.DatabaseURL())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "opening database")
	}

	enc, err := crypto.New()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "initializing encryption service")
	}

	credentials := credstore.NewSQLStore(db, enc)
	connections := registry.NewSQLConnectionRepository(db)
	actions := registry.NewSQLActionRepository(db)
	bindings := binding.NewSQLStore(db)
	execStore := execengine.NewSQLStore(db)

	mtx := metrics.New(prometheus.DefaultRegisterer)

	reg := registry.New(connections, actions)
	bindingManager := binding.New(bindings, credstoreAuthChecker{credentials}, registryActionChecker{actions})
	orchestrator := authorchestrator.New(credentials,
		authorchestrator.WithHTTPClient(http.DefaultClient),
		authorchestrator.WithMetrics(mtx))
	engine := execengine.New(actions, connections, bindings, orchestrator, execStore, http.DefaultClient,
		execengine.WithMetrics(mtx))

	return &App{
		Config:         cfg,
		DB:             db,
		Crypto:         enc,
		Credentials:    credentials,
		Connections:    connections,
		Actions:        actions,
		Bindings:       bindings,
		Registry:       reg,
		BindingManager: bindingManager,
		Orchestrator:   orchestrator,
		ExecutionStore: execStore,
		Engine:         engine,
		Metrics:        mtx,
	}, nil
}

// credstoreAuthChecker adapts credstore.Store to binding.AuthChecker by
// parsing the auth_trn back into the (tenant, provider, user) triple
// credstore.Ref expects.
type credstoreAuthChecker struct {
	store credstore.Store
}

func (c credstoreAuthChecker) AuthExists(ctx context.Context, authTRN string) (bool, error) {
	t, err := trn.Parse(authTRN)
	if err != nil {
		return false, err
	}
	_, ok, err := c.store.Get(ctx, credstore.Ref{Tenant: t.Tenant, Provider: t.Connector, UserID: t.Name})
	return ok, err
}

// registryActionChecker adapts registry.ActionRepository to
// binding.ActionChecker, resolving pinned or unpinned action TRNs the same
// way the Execution Engine does.
type registryActionChecker struct {
	actions registry.ActionRepository
}

func (r registryActionChecker) ActionExists(ctx context.Context, actionTRN string) (bool, error) {
	t, err := trn.ParseAction(actionTRN)
	if err != nil {
		return false, err
	}
	if t.Version != nil {
		_, ok, err := r.actions.GetVersion(ctx, t.Tenant, t.Connector, t.Name, *t.Version)
		return ok, err
	}
	_, ok, err := r.actions.Latest(ctx, t.Tenant, t.Connector, t.Name)
	return ok, err
}
