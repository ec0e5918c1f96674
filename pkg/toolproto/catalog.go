package toolproto

import (
	"context"
	"sort"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/logger"
	"github.com/aionixone/openact-sub001/pkg/registry"
)

// executeToolName is the generic escape-hatch tool always present in
// tools/list, alongside the per-action tools discovered from the registry.
const executeToolName = "openact.execute"

// catalogEntry binds a resolved tool name back to the action TRN and
// version-pin policy the dispatcher needs to run it.
type catalogEntry struct {
	tool      Tool
	actionTRN string
	connector string
	action    string
	version   int64
}

// BuildCatalog enumerates every mcp_enabled action for tenant (spec.md
// §4.10), resolving each to a tool name through
// mcp_overrides.tool_name -> "<connector>.<name>". A later action that
// resolves to a tool name already claimed is skipped and logged rather
// than overwriting the earlier one (spec.md §8 scenario 6).
func BuildCatalog(ctx context.Context, actions registry.ActionRepository, tenant string, gov *Governance) ([]catalogEntry, error) {
	connectors, err := actions.Connectors(ctx, tenant)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing connectors for tool catalog")
	}
	sort.Strings(connectors)

	seen := make(map[string]bool)
	var entries []catalogEntry
	for _, connector := range connectors {
		recs, err := actions.ListByConnector(ctx, tenant, connector)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing actions for tool catalog")
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
		for _, rec := range recs {
			if !rec.MCPEnabled {
				continue
			}
			toolName := resolveToolName(rec)
			if gov != nil && !gov.Allowed(toolName) {
				continue
			}
			if seen[toolName] {
				logger.Infof("toolproto: skipping %s/%s: tool name %q already claimed", connector, rec.Name, toolName)
				continue
			}
			seen[toolName] = true
			entries = append(entries, catalogEntry{
				tool: Tool{
					Name:        toolName,
					Description: describeAction(rec),
					InputSchema: inputSchemaOf(rec),
				},
				actionTRN: rec.TRN,
				connector: connector,
				action:    rec.Name,
				version:   rec.Version,
			})
		}
	}
	return entries, nil
}

func resolveToolName(rec registry.ActionRecord) string {
	if rec.MCPOverrides != nil {
		if name, ok := rec.MCPOverrides["tool_name"].(string); ok && name != "" {
			return name
		}
	}
	return rec.Connector + "." + rec.Name
}

func describeAction(rec registry.ActionRecord) string {
	if rec.MCPOverrides != nil {
		if desc, ok := rec.MCPOverrides["description"].(string); ok && desc != "" {
			return desc
		}
	}
	if rec.Metadata != nil {
		if desc, ok := rec.Metadata["description"].(string); ok && desc != "" {
			return desc
		}
	}
	return "Run the " + rec.Connector + "/" + rec.Name + " action."
}

func inputSchemaOf(rec registry.ActionRecord) map[string]any {
	if rec.Metadata != nil {
		if schema, ok := rec.Metadata["input_schema"].(map[string]any); ok {
			return schema
		}
	}
	return map[string]any{"type": "object"}
}

// executeTool is the always-present generic tool (spec.md §4.10).
func executeTool() Tool {
	return Tool{
		Name:        executeToolName,
		Description: "Run any registered action by TRN, or by (connector, action, version).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tenant":     map[string]any{"type": "string"},
				"action_trn": map[string]any{"type": "string", "description": "Fully-qualified pinned action TRN. Mutually exclusive with connector/action/version."},
				"connector":  map[string]any{"type": "string"},
				"action":     map[string]any{"type": "string"},
				"version":    map[string]any{"type": "integer", "description": "Required when resolving by (connector, action) — no implicit latest."},
				"input":      map[string]any{"type": "object"},
			},
		},
	}
}
