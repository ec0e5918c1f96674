package execengine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/authorchestrator"
	"github.com/aionixone/openact-sub001/pkg/binding"
	"github.com/aionixone/openact-sub001/pkg/credstore"
	"github.com/aionixone/openact-sub001/pkg/execengine"
	"github.com/aionixone/openact-sub001/pkg/registry"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

func TestRunActionByTRNWithInputHappyPath(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pat-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"repos":["a","b"]}`))
	}))
	defer srv.Close()

	tenant := "acme"
	connections := registry.NewMemoryConnectionRepository()
	actions := registry.NewMemoryActionRepository()
	bindings := binding.NewMemoryStore()

	connTRN := trn.New(tenant, trn.KindConnection, "github", "main").WithVersion(1).Format()
	require.NoError(t, connections.Insert(context.Background(), registry.ConnectionRecord{
		TRN: connTRN, Tenant: tenant, Connector: "github", Name: "main", Version: 1,
		Config: map[string]any{"base_url": srv.URL, "auth": map[string]any{"kind": "oauth"}},
	}))

	actionTRN := trn.New(tenant, trn.KindAction, "github", "list_repos").WithVersion(1).Format()
	require.NoError(t, actions.Insert(context.Background(), registry.ActionRecord{
		TRN: actionTRN, Tenant: tenant, Connector: "github", Name: "list_repos", Version: 1,
		ConnectionTRN: connTRN, Config: map[string]any{"path": "/repos", "method": "GET"},
	}))

	authTRN := trn.New(tenant, trn.KindAuthConnection, "github", "u1").Format()
	require.NoError(t, bindings.Bind(context.Background(), binding.Binding{Tenant: tenant, AuthTRN: authTRN, ActionTRN: actionTRN}))

	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store)
	_, err := orch.CreatePATConnection(context.Background(), authorchestrator.Ref{Tenant: tenant, Provider: "github", UserID: "u1"}, "pat-token", nil)
	require.NoError(t, err)

	engine := execengine.New(actions, connections, bindings, orch, execengine.NewMemoryStore(), srv.Client())

	rec, err := engine.RunActionByTRNWithInput(context.Background(), tenant, actionTRN, "exec-1", execengine.Input{})
	require.NoError(t, err)
	assert.Equal(t, execengine.StatusCompleted, rec.Status)
	require.NotNil(t, rec.StatusCode)
	assert.Equal(t, http.StatusOK, *rec.StatusCode)
	httpSection, ok := rec.OutputData["http"].(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, httpSection["body"])
}

func TestRunActionByTRNWithInputUnknownActionIsNotFound(t *testing.T) {
	t.Parallel()
	connections := registry.NewMemoryConnectionRepository()
	actions := registry.NewMemoryActionRepository()
	bindings := binding.NewMemoryStore()
	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store)
	engine := execengine.New(actions, connections, bindings, orch, execengine.NewMemoryStore(), http.DefaultClient)

	missingTRN := trn.New("acme", trn.KindAction, "github", "missing").WithVersion(1).Format()
	rec, err := engine.RunActionByTRNWithInput(context.Background(), "acme", missingTRN, "exec-2", execengine.Input{})
	require.Error(t, err)
	assert.Equal(t, execengine.StatusFailed, rec.Status)
}

func TestRunActionByTRNWithInputMissingBindingIsAuthError(t *testing.T) {
	t.Parallel()
	tenant := "acme"
	connections := registry.NewMemoryConnectionRepository()
	actions := registry.NewMemoryActionRepository()
	bindings := binding.NewMemoryStore()

	connTRN := trn.New(tenant, trn.KindConnection, "github", "main").WithVersion(1).Format()
	require.NoError(t, connections.Insert(context.Background(), registry.ConnectionRecord{
		TRN: connTRN, Tenant: tenant, Connector: "github", Name: "main", Version: 1,
		Config: map[string]any{"base_url": "https://api.example.com", "auth": map[string]any{"kind": "oauth"}},
	}))
	actionTRN := trn.New(tenant, trn.KindAction, "github", "list_repos").WithVersion(1).Format()
	require.NoError(t, actions.Insert(context.Background(), registry.ActionRecord{
		TRN: actionTRN, Tenant: tenant, Connector: "github", Name: "list_repos", Version: 1,
		ConnectionTRN: connTRN, Config: map[string]any{"path": "/repos", "method": "GET"},
	}))

	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store)
	engine := execengine.New(actions, connections, bindings, orch, execengine.NewMemoryStore(), http.DefaultClient)

	rec, err := engine.RunActionByTRNWithInput(context.Background(), tenant, actionTRN, "exec-3", execengine.Input{})
	require.Error(t, err)
	assert.Equal(t, execengine.StatusFailed, rec.Status)
}
