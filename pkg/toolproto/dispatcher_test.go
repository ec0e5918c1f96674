package toolproto_test

import (
	"context"
	"encoding/json"
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
	"github.com/aionixone/openact-sub001/pkg/toolproto"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

func newTestServer(t *testing.T, upstream *httptest.Server) (*toolproto.Server, string) {
	t.Helper()
	tenant := "acme"

	connections := registry.NewMemoryConnectionRepository()
	actions := registry.NewMemoryActionRepository()
	bindings := binding.NewMemoryStore()

	connTRN := trn.New(tenant, trn.KindConnection, "github", "main").WithVersion(1).Format()
	require.NoError(t, connections.Insert(context.Background(), registry.ConnectionRecord{
		TRN: connTRN, Tenant: tenant, Connector: "github", Name: "main", Version: 1,
		Config: map[string]any{"base_url": upstream.URL, "auth": map[string]any{"kind": "oauth"}},
	}))

	actionTRN := trn.New(tenant, trn.KindAction, "github", "list_repos").WithVersion(1).Format()
	require.NoError(t, actions.Insert(context.Background(), registry.ActionRecord{
		TRN: actionTRN, Tenant: tenant, Connector: "github", Name: "list_repos", Version: 1,
		ConnectionTRN: connTRN, Config: map[string]any{"path": "/repos", "method": "GET"},
		MCPEnabled: true, MCPOverrides: map[string]any{"tool_name": "list_repos"},
	}))

	authTRN := trn.New(tenant, trn.KindAuthConnection, "github", "u1").Format()
	require.NoError(t, bindings.Bind(context.Background(), binding.Binding{Tenant: tenant, AuthTRN: authTRN, ActionTRN: actionTRN}))

	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store)
	_, err := orch.CreatePATConnection(context.Background(), authorchestrator.Ref{Tenant: tenant, Provider: "github", UserID: "u1"}, "pat-token", nil)
	require.NoError(t, err)

	engine := execengine.New(actions, connections, bindings, orch, execengine.NewMemoryStore(), upstream.Client())
	gov := toolproto.NewGovernance(toolproto.GovernanceConfig{MaxConcurrency: 4})
	return toolproto.NewServer(actions, engine, gov, false), tenant
}

func TestToolsListIncludesAliasAndGenericExecute(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	server, tenant := newTestServer(t, upstream)
	ctx := toolproto.WithTenant(context.Background(), tenant)

	resp := server.HandleRequest(ctx, toolproto.Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(toolproto.ToolsListResult)
	require.True(t, ok)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "list_repos")
	assert.Contains(t, names, "openact.execute")
}

func TestToolsCallByAliasRunsAction(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pat-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"repos":[]}`))
	}))
	defer upstream.Close()

	server, tenant := newTestServer(t, upstream)
	ctx := toolproto.WithTenant(context.Background(), tenant)

	params, err := json.Marshal(toolproto.ToolsCallParams{Name: "list_repos", Arguments: map[string]any{}})
	require.NoError(t, err)

	resp := server.HandleRequest(ctx, toolproto.Request{JSONRPC: "2.0", ID: 2, Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(toolproto.ToolsCallResult)
	require.True(t, ok)
	assert.False(t, result.IsError)
}

func TestToolsCallUnknownToolIsNotFound(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	server, tenant := newTestServer(t, upstream)
	ctx := toolproto.WithTenant(context.Background(), tenant)

	params, err := json.Marshal(toolproto.ToolsCallParams{Name: "does.not.exist", Arguments: map[string]any{}})
	require.NoError(t, err)

	resp := server.HandleRequest(ctx, toolproto.Request{JSONRPC: "2.0", ID: 3, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
}

func TestToolsCallExecuteByConnectorActionVersionRequiresVersion(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	server, tenant := newTestServer(t, upstream)
	ctx := toolproto.WithTenant(context.Background(), tenant)

	params, err := json.Marshal(toolproto.ToolsCallParams{
		Name:      "openact.execute",
		Arguments: map[string]any{"connector": "github", "action": "list_repos"},
	})
	require.NoError(t, err)

	resp := server.HandleRequest(ctx, toolproto.Request{JSONRPC: "2.0", ID: 4, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
}

func TestInitializeAndPing(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	server, tenant := newTestServer(t, upstream)
	ctx := toolproto.WithTenant(context.Background(), tenant)

	resp := server.HandleRequest(ctx, toolproto.Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	require.Nil(t, resp.Error)
	_, ok := resp.Result.(toolproto.InitializeResult)
	assert.True(t, ok)

	resp = server.HandleRequest(ctx, toolproto.Request{JSONRPC: "2.0", ID: 2, Method: "ping"})
	require.Nil(t, resp.Error)
}
