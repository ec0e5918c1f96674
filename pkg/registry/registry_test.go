package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/manifest"
	"github.com/aionixone/openact-sub001/pkg/registry"
)

func sampleManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version: "1.0",
		Connectors: map[string]*manifest.Connector{
			"github": {
				Connections: map[string]*manifest.ConnectionConfig{
					"default": {Config: map[string]any{"base_url": "https://api.github.com", "token": "secret-1"}},
				},
				Actions: map[string]*manifest.ActionConfig{
					"list_repos": {Connection: "default", Config: map[string]any{"method": "GET", "url": "/user/repos"}, MCPEnabled: true},
				},
			},
		},
	}
}

func newRegistry() *registry.Registry {
	return registry.New(registry.NewMemoryConnectionRepository(), registry.NewMemoryActionRepository())
}

func TestImportCreatesConnectionsAndActionsAtVersionOne(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	result, err := r.Import(context.Background(), sampleManifest(), registry.ImportOptions{Tenant: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ConnectionsCreated)
	assert.Equal(t, 1, result.ActionsCreated)
	assert.Empty(t, result.Conflicts)
	assert.Contains(t, result.PlannedConnectionTRNs["github/default"], "@v1")
}

func TestImportAlwaysBumpIncrementsVersionOnReimport(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	ctx := context.Background()

	_, err := r.Import(ctx, sampleManifest(), registry.ImportOptions{Tenant: "acme", Strategy: registry.AlwaysBump})
	require.NoError(t, err)

	m2 := sampleManifest()
	m2.Connectors["github"].Connections["default"].Config["base_url"] = "https://api.github.com/v2"
	result, err := r.Import(ctx, m2, registry.ImportOptions{Tenant: "acme", Strategy: registry.AlwaysBump})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ConnectionsUpdated)
	assert.Contains(t, result.PlannedConnectionTRNs["github/default"], "@v2")
}

func TestImportReuseIfUnchangedSkipsIdenticalConfig(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	ctx := context.Background()

	m := sampleManifest()
	_, err := r.Import(ctx, m, registry.ImportOptions{Tenant: "acme", Strategy: registry.ReuseIfUnchanged})
	require.NoError(t, err)

	result, err := r.Import(ctx, m, registry.ImportOptions{Tenant: "acme", Strategy: registry.ReuseIfUnchanged})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConnectionsReused)
	assert.Equal(t, 0, result.ConnectionsCreated)
	assert.Equal(t, 1, result.ActionsReused)
}

func TestImportDryRunSuppressesWrites(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	ctx := context.Background()

	result, err := r.Import(ctx, sampleManifest(), registry.ImportOptions{Tenant: "acme", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConnectionsCreated)

	// Nothing was actually written: a second dry run still reports "created".
	second, err := r.Import(ctx, sampleManifest(), registry.ImportOptions{Tenant: "acme", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ConnectionsCreated)
}

func TestImportUnknownConnectionReferenceIsConflict(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	m := sampleManifest()
	m.Connectors["github"].Actions["list_repos"].Connection = "does-not-exist"

	result, err := r.Import(context.Background(), m, registry.ImportOptions{Tenant: "acme"})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "action", result.Conflicts[0].Kind)
}

func TestExportRedactsSensitiveFields(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	ctx := context.Background()
	_, err := r.Import(ctx, sampleManifest(), registry.ImportOptions{Tenant: "acme"})
	require.NoError(t, err)

	exported, err := r.Export(ctx, registry.ExportOptions{Tenant: "acme", Redact: true})
	require.NoError(t, err)

	conn := exported.Connectors["github"].Connections["default"]
	assert.Equal(t, "https://api.github.com", conn.Config["base_url"])
	assert.Equal(t, "***REDACTED***", conn.Config["token"])

	action := exported.Connectors["github"].Actions["list_repos"]
	assert.Equal(t, "default", action.Connection)
	assert.True(t, action.MCPEnabled)
}

func TestExportWithoutRedactionKeepsRawValues(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	ctx := context.Background()
	_, err := r.Import(ctx, sampleManifest(), registry.ImportOptions{Tenant: "acme"})
	require.NoError(t, err)

	exported, err := r.Export(ctx, registry.ExportOptions{Tenant: "acme", Redact: false})
	require.NoError(t, err)
	assert.Equal(t, "secret-1", exported.Connectors["github"].Connections["default"].Config["token"])
}
