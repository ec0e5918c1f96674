package registry

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/manifest"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// Registry composes a ConnectionRepository and ActionRepository into the
// import/export pipeline described by spec.md §4.7. It never opens its own
// database connection — both repositories are supplied by the caller.
type Registry struct {
	connections ConnectionRepository
	actions     ActionRepository
	clock       func() time.Time
}

// New constructs a Registry over the given repositories, using the real
// wall clock.
func New(connections ConnectionRepository, actions ActionRepository) *Registry {
	return &Registry{connections: connections, actions: actions, clock: time.Now}
}

// ImportOptions configures one Import call.
type ImportOptions struct {
	Tenant   string
	Strategy VersioningStrategy
	// DryRun suppresses all writes; the returned ImportResult still
	// reports what would have happened.
	DryRun bool
	// Validate runs manifest.Validate before importing; a non-empty
	// result aborts with KindSchemaValidation and no writes.
	Validate bool
}

// Import runs the six-step pipeline from spec.md §4.7: plan every
// connection's TRN first (so actions can resolve them), then apply
// connections, then actions, aggregating counts and conflicts.
func (r *Registry) Import(ctx context.Context, m *manifest.Manifest, opts ImportOptions) (ImportResult, error) {
	if opts.Validate {
		if err := manifest.ValidateOrError(m); err != nil {
			return ImportResult{}, err
		}
	}
	if opts.Strategy == "" {
		opts.Strategy = AlwaysBump
	}

	result := ImportResult{DryRun: opts.DryRun, PlannedConnectionTRNs: map[string]string{}}

	// Step: sorted connector names for deterministic iteration.
	connectorNames := make([]string, 0, len(m.Connectors))
	for name := range m.Connectors {
		connectorNames = append(connectorNames, name)
	}
	sort.Strings(connectorNames)

	for _, connectorName := range connectorNames {
		connector := m.Connectors[connectorName]

		connNames := make([]string, 0, len(connector.Connections))
		for name := range connector.Connections {
			connNames = append(connNames, name)
		}
		sort.Strings(connNames)

		for _, name := range connNames {
			cfg := connector.Connections[name]
			plannedTRN, err := r.planConnection(ctx, opts, &result, connectorName, name, cfg)
			if err != nil {
				return ImportResult{}, err
			}
			result.PlannedConnectionTRNs[connectorName+"/"+name] = plannedTRN
		}

		actionNames := make([]string, 0, len(connector.Actions))
		for name := range connector.Actions {
			actionNames = append(actionNames, name)
		}
		sort.Strings(actionNames)

		for _, name := range actionNames {
			cfg := connector.Actions[name]
			if err := r.planAction(ctx, opts, &result, connectorName, name, cfg); err != nil {
				return ImportResult{}, err
			}
		}
	}

	return result, nil
}

func (r *Registry) planConnection(ctx context.Context, opts ImportOptions, result *ImportResult, connector, name string, cfg *manifest.ConnectionConfig) (string, error) {
	latest, exists, err := r.connections.Latest(ctx, opts.Tenant, connector, name)
	if err != nil {
		return "", err
	}

	switch opts.Strategy {
	case ForceRollbackToLatest:
		if exists {
			return latest.TRN, nil
		}
		if opts.DryRun {
			return trn.New(opts.Tenant, trn.KindConnection, connector, name).WithVersion(1).Format(), nil
		}
		return "", apperrors.New(apperrors.KindConflict, "force_rollback_to_latest requires an existing version outside dry-run").
			WithData(map[string]any{"connector": connector, "name": name})

	case ReuseIfUnchanged:
		if exists && reflect.DeepEqual(latest.Config, cfg.Config) {
			result.ConnectionsReused++
			return latest.TRN, nil
		}
		return r.writeConnection(ctx, opts, result, connector, name, cfg, latest, exists)

	default: // AlwaysBump
		return r.writeConnection(ctx, opts, result, connector, name, cfg, latest, exists)
	}
}

func (r *Registry) writeConnection(ctx context.Context, opts ImportOptions, result *ImportResult, connector, name string, cfg *manifest.ConnectionConfig, latest ConnectionRecord, exists bool) (string, error) {
	nextVersion := int64(1)
	if exists {
		nextVersion = latest.Version + 1
	}
	t := trn.New(opts.Tenant, trn.KindConnection, connector, name).WithVersion(nextVersion)

	if opts.DryRun {
		if exists {
			result.ConnectionsUpdated++
		} else {
			result.ConnectionsCreated++
		}
		return t.Format(), nil
	}

	rec := ConnectionRecord{
		TRN: t.Format(), Tenant: opts.Tenant, Connector: connector, Name: name,
		Version: nextVersion, Config: cfg.Config, Description: cfg.Description, Metadata: cfg.Metadata,
		CreatedAt: r.clock().UTC(),
	}
	if err := r.connections.Insert(ctx, rec); err != nil {
		return "", err
	}
	if exists {
		result.ConnectionsUpdated++
	} else {
		result.ConnectionsCreated++
	}
	return rec.TRN, nil
}

func (r *Registry) planAction(ctx context.Context, opts ImportOptions, result *ImportResult, connector, name string, cfg *manifest.ActionConfig) error {
	connectionTRN, ok := result.PlannedConnectionTRNs[connector+"/"+cfg.Connection]
	if !ok || connectionTRN == "" {
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind: "action", Connector: connector, Name: name,
			Detail: "action references connection \"" + cfg.Connection + "\" which has no planned TRN",
		})
		return nil
	}

	latest, exists, err := r.actions.Latest(ctx, opts.Tenant, connector, name)
	if err != nil {
		return err
	}

	switch opts.Strategy {
	case ForceRollbackToLatest:
		if exists {
			return nil
		}
		if !opts.DryRun {
			result.Conflicts = append(result.Conflicts, Conflict{
				Kind: "action", Connector: connector, Name: name,
				Detail: "force_rollback_to_latest requires an existing version outside dry-run",
			})
		}
		return nil

	case ReuseIfUnchanged:
		if exists && reflect.DeepEqual(latest.Config, cfg.Config) && reflect.DeepEqual(latest.MCPOverrides, cfg.MCPOverrides) {
			result.ActionsReused++
			return nil
		}
		return r.writeAction(ctx, opts, result, connector, name, connectionTRN, cfg, latest, exists)

	default:
		return r.writeAction(ctx, opts, result, connector, name, connectionTRN, cfg, latest, exists)
	}
}

func (r *Registry) writeAction(ctx context.Context, opts ImportOptions, result *ImportResult, connector, name, connectionTRN string, cfg *manifest.ActionConfig, latest ActionRecord, exists bool) error {
	nextVersion := int64(1)
	if exists {
		nextVersion = latest.Version + 1
	}
	t := trn.New(opts.Tenant, trn.KindAction, connector, name).WithVersion(nextVersion)

	if opts.DryRun {
		if exists {
			result.ActionsUpdated++
		} else {
			result.ActionsCreated++
		}
		return nil
	}

	metadata := cfg.Metadata
	if cfg.InputSchema != nil {
		metadata = mergeMetadataInputSchema(metadata, cfg.InputSchema)
	}

	rec := ActionRecord{
		TRN: t.Format(), Tenant: opts.Tenant, Connector: connector, Name: name, Version: nextVersion,
		ConnectionTRN: connectionTRN, Config: cfg.Config, MCPEnabled: cfg.MCPEnabled,
		MCPOverrides: cfg.MCPOverrides, Metadata: metadata, CreatedAt: r.clock().UTC(),
	}
	if err := r.actions.Insert(ctx, rec); err != nil {
		return err
	}
	if exists {
		result.ActionsUpdated++
	} else {
		result.ActionsCreated++
	}
	return nil
}

// ExportOptions configures one Export call.
type ExportOptions struct {
	Tenant string
	// Connectors restricts export to this set; empty means "every
	// connector the store knows about for Tenant".
	Connectors []string
	// Redact strips sensitive-looking config leaves (spec.md §4.7 step 3).
	// The field's zero value is false, which exports raw values.
	Redact bool
}

// Export builds a manifest.Manifest from the latest version of every
// connection and action under the requested connectors.
func (r *Registry) Export(ctx context.Context, opts ExportOptions) (*manifest.Manifest, error) {
	connectorNames := opts.Connectors
	if len(connectorNames) == 0 {
		names, err := r.connections.Connectors(ctx, opts.Tenant)
		if err != nil {
			return nil, err
		}
		connectorNames = names
	}

	redact := opts.Redact
	m := &manifest.Manifest{Version: "1.0", Connectors: map[string]*manifest.Connector{}}

	for _, connectorName := range connectorNames {
		conns, err := r.connections.ListByConnector(ctx, opts.Tenant, connectorName)
		if err != nil {
			return nil, err
		}
		acts, err := r.actions.ListByConnector(ctx, opts.Tenant, connectorName)
		if err != nil {
			return nil, err
		}

		out := &manifest.Connector{
			Connections: map[string]*manifest.ConnectionConfig{},
			Actions:     map[string]*manifest.ActionConfig{},
		}
		for _, c := range conns {
			cfg := c.Config
			if redact {
				cfg = redactConfig(cfg)
			}
			out.Connections[c.Name] = &manifest.ConnectionConfig{Config: cfg, Description: c.Description, Metadata: c.Metadata}
		}
		for _, a := range acts {
			cfg := a.Config
			if redact {
				cfg = redactConfig(cfg)
			}
			out.Actions[a.Name] = &manifest.ActionConfig{
				Connection: connectionNameFromTRN(a.ConnectionTRN), Config: cfg,
				MCPEnabled: a.MCPEnabled, MCPOverrides: a.MCPOverrides, Metadata: a.Metadata,
			}
		}
		m.Connectors[connectorName] = out
	}
	return m, nil
}

// connectionNameFromTRN extracts the bare connection name from a TRN
// string, falling back to the raw string if it doesn't parse (so export
// never fails outright over a malformed legacy row).
func connectionNameFromTRN(connectionTRN string) string {
	t, err := trn.Parse(connectionTRN)
	if err != nil {
		return connectionTRN
	}
	return t.Name
}

// mergeMetadataInputSchema stashes an action's compiled input_schema under
// metadata["input_schema"], since ActionRecord has no dedicated column for
// it; the Tool Protocol Front (C10) reads it back from there to populate
// each tool's inputSchema.
func mergeMetadataInputSchema(metadata map[string]any, schema map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["input_schema"] = schema
	return out
}
