package httpapi

import (
	"net/http"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

type bindRequest struct {
	AuthTRN   string `json:"auth_trn"`
	ActionTRN string `json:"action_trn"`
	CreatedBy string `json:"created_by"`
}

func (rt *routes) bind(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)

	var req bindRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AuthTRN == "" || req.ActionTRN == "" {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "auth_trn and action_trn are required"))
		return
	}

	if err := rt.app.BindingManager.Bind(r.Context(), tenant, req.AuthTRN, req.ActionTRN, req.CreatedBy); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"bound": true})
}

func (rt *routes) unbind(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)

	var req bindRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AuthTRN == "" || req.ActionTRN == "" {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "auth_trn and action_trn are required"))
		return
	}

	removed, err := rt.app.BindingManager.Unbind(r.Context(), tenant, req.AuthTRN, req.ActionTRN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"removed": removed})
}

func (rt *routes) listBindings(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)

	var authFilter, actionFilter *string
	if v := r.URL.Query().Get("auth_trn"); v != "" {
		authFilter = &v
	}
	if v := r.URL.Query().Get("action_trn"); v != "" {
		actionFilter = &v
	}

	bindings, err := rt.app.BindingManager.ListByTenant(r.Context(), tenant, authFilter, actionFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, bindings)
}
