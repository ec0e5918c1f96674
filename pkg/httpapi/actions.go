package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/execengine"
	"github.com/aionixone/openact-sub001/pkg/manifest"
	"github.com/aionixone/openact-sub001/pkg/registry"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// resolveTenant reads ?tenant= from the request, falling back to the
// bootstrapped app's configured default tenant (same fallback rule the
// CLI's resolveTenant applies for --tenant).
func (rt *routes) resolveTenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenant"); t != "" {
		return t
	}
	return rt.app.Config.DefaultTenant()
}

type importActionsRequest struct {
	Manifest *manifest.Manifest `json:"manifest"`
	Tenant   string             `json:"tenant"`
	Strategy string             `json:"strategy"`
	DryRun   bool               `json:"dry_run"`
	Validate bool               `json:"validate"`
}

func (rt *routes) importActions(w http.ResponseWriter, r *http.Request) {
	var req importActionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Manifest == nil {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "request body must carry a \"manifest\" document"))
		return
	}

	tenant := req.Tenant
	if tenant == "" {
		tenant = rt.resolveTenant(r)
	}
	strategy := registry.VersioningStrategy(req.Strategy)
	if strategy == "" {
		strategy = registry.AlwaysBump
	}

	result, err := rt.app.Registry.Import(r.Context(), req.Manifest, registry.ImportOptions{
		Tenant:   tenant,
		Strategy: strategy,
		DryRun:   req.DryRun,
		Validate: req.Validate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, result)
}

func (rt *routes) exportActions(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)
	connectors := r.URL.Query()["connector"]
	redact := r.URL.Query().Get("redact") != "false"

	m, err := rt.app.Registry.Export(r.Context(), registry.ExportOptions{
		Tenant:     tenant,
		Connectors: connectors,
		Redact:     redact,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, m)
}

func (rt *routes) listActions(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)
	connector := r.URL.Query().Get("connector")
	if connector == "" {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "connector query parameter is required"))
		return
	}

	actions, err := rt.app.Actions.ListByConnector(r.Context(), tenant, connector)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, actions)
}

type runActionRequest struct {
	ActionTRN string           `json:"action_trn"`
	Connector string           `json:"connector"`
	Action    string           `json:"action"`
	Version   int64            `json:"version"`
	Input     execengine.Input `json:"input"`
}

func (rt *routes) runAction(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)

	var req runActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	actionTRN, err := resolveActionTRN(tenant, req)
	if err != nil {
		writeError(w, err)
		return
	}

	executionTRN := trn.New(tenant, trn.KindExecution, "http", uuid.NewString()).Format()
	rec, err := rt.app.Engine.RunActionByTRNWithInput(r.Context(), tenant, actionTRN, executionTRN, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, rec)
}

// resolveActionTRN mirrors the CLI run command's rule (spec.md §4.10):
// resolving by connector/action name requires an explicit positive
// version; there is no implicit "latest".
func resolveActionTRN(tenant string, req runActionRequest) (string, error) {
	if req.ActionTRN != "" {
		return req.ActionTRN, nil
	}
	if req.Connector == "" || req.Action == "" {
		return "", apperrors.New(apperrors.KindInvalidArguments, "run requires action_trn, or connector and action")
	}
	if req.Version <= 0 {
		return "", apperrors.New(apperrors.KindInvalidArguments,
			"run requires an explicit version when resolving by connector/action; no implicit latest")
	}
	return trn.New(tenant, trn.KindAction, req.Connector, req.Action).WithVersion(req.Version).Format(), nil
}

func (rt *routes) executionStatus(w http.ResponseWriter, r *http.Request) {
	executionTRN := chi.URLParam(r, "trn")
	t, err := trn.Parse(executionTRN)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.Kind != trn.KindExecution {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "trn does not name an execution"))
		return
	}

	rec, ok, err := rt.app.ExecutionStore.Get(r.Context(), executionTRN)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.KindNotFound, "execution not found").
			WithData(map[string]any{"trn": executionTRN}))
		return
	}
	writeOK(w, rec)
}
