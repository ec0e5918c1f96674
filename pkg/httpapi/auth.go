package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/authorchestrator"
	"github.com/aionixone/openact-sub001/pkg/credstore"
	"github.com/aionixone/openact-sub001/pkg/registry"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// redactedConnection strips access_token/refresh_token/extra before a
// credential ever reaches an HTTP response body.
func redactedConnection(conn credstore.AuthConnection) map[string]any {
	return map[string]any{
		"trn":         conn.TRN,
		"tenant":      conn.Tenant,
		"provider":    conn.Provider,
		"user_id":     conn.UserID,
		"token_type":  conn.TokenType,
		"scope":       conn.Scope,
		"expires_at":  conn.ExpiresAt,
		"key_version": conn.KeyVersion,
		"version":     conn.Version,
	}
}

type authBeginRequest struct {
	Connector  string                        `json:"connector"`
	Connection string                        `json:"connection"`
	UserID     string                        `json:"user_id"`
}

func (rt *routes) authBegin(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)

	var req authBeginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Connector == "" || req.Connection == "" || req.UserID == "" {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "connector, connection, and user_id are required"))
		return
	}

	conn, ok, err := rt.app.Connections.Latest(r.Context(), tenant, req.Connector, req.Connection)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.KindNotFound, "connection not found").
			WithData(map[string]any{"connector": req.Connector, "name": req.Connection}))
		return
	}

	oauthCfg, err := oauth2ConfigFromConnection(conn)
	if err != nil {
		writeError(w, err)
		return
	}

	ref := authorchestrator.Ref{Tenant: tenant, Provider: req.Connector, UserID: req.UserID}
	pending, err := rt.app.Orchestrator.BeginOAuthFromConfig(r.Context(), ref, oauthCfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, pending)
}

type authResumeRequest struct {
	State string `json:"state"`
	Code  string `json:"code"`
}

func (rt *routes) authResume(w http.ResponseWriter, r *http.Request) {
	var req authResumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.State == "" || req.Code == "" {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "state and code are required"))
		return
	}

	conn, err := rt.app.Orchestrator.CompleteOAuthWithCallback(r.Context(), req.State, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, redactedConnection(conn))
}

type authRefreshRequest struct {
	Provider string `json:"provider"`
	UserID   string `json:"user_id"`
}

func (rt *routes) authRefresh(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)

	var req authRefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Provider == "" || req.UserID == "" {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "provider and user_id are required"))
		return
	}

	ref := authorchestrator.Ref{Tenant: tenant, Provider: req.Provider, UserID: req.UserID}
	conn, err := rt.app.Orchestrator.RefreshConnection(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, redactedConnection(conn))
}

func (rt *routes) authGet(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)
	provider := chi.URLParam(r, "provider")
	userID := chi.URLParam(r, "userID")

	ref := authorchestrator.Ref{Tenant: tenant, Provider: provider, UserID: userID}
	conn, ok, err := rt.app.Credentials.Get(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.KindNotFound, "auth connection not found").
			WithData(map[string]any{"provider": provider, "user_id": userID}))
		return
	}
	writeOK(w, redactedConnection(conn))
}

func (rt *routes) authRevoke(w http.ResponseWriter, r *http.Request) {
	tenant := rt.resolveTenant(r)
	provider := chi.URLParam(r, "provider")
	userID := chi.URLParam(r, "userID")

	ref := authorchestrator.Ref{Tenant: tenant, Provider: provider, UserID: userID}
	removed, err := rt.app.Credentials.Delete(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"removed": removed})
}

// authFlowStatus reports the status of an auth flow by its resulting
// auth-connection TRN. The Auth Orchestrator's in-flight OAuth session
// state (the pending authorize-URL/CSRF-state pair) is private and
// consumed exactly once by CompleteOAuthWithCallback, so there is nothing
// durable to report while a flow is still pending; the only externally
// observable, repeatedly-readable state a flow produces is the
// AuthConnection it leaves behind once auth-resume completes. This reports
// that — the same data auth-get exposes, addressed by TRN instead of
// (provider, user_id).
func (rt *routes) authFlowStatus(w http.ResponseWriter, r *http.Request) {
	authTRN := chi.URLParam(r, "trn")

	t, err := trn.Parse(authTRN)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.Kind != trn.KindAuthConnection {
		writeError(w, apperrors.New(apperrors.KindInvalidArguments, "trn does not name an auth connection"))
		return
	}

	ref := credstore.Ref{Tenant: t.Tenant, Provider: t.Connector, UserID: t.Name}
	conn, ok, err := rt.app.Credentials.Get(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.KindNotFound, "auth flow has not completed, or no such auth connection").
			WithData(map[string]any{"trn": authTRN}))
		return
	}
	writeOK(w, redactedConnection(conn))
}

// oauth2ConfigFromConnection maps a stored connection's config object into
// the OAuth2Config the Auth Orchestrator expects. Connection configs store
// these under an "auth" sub-object (spec.md §6 manifest file format).
func oauth2ConfigFromConnection(conn registry.ConnectionRecord) (authorchestrator.OAuth2Config, error) {
	auth, _ := conn.Config["auth"].(map[string]any)
	if auth == nil {
		return authorchestrator.OAuth2Config{}, apperrors.New(apperrors.KindInvalidArguments,
			"connection config has no auth object").WithData(map[string]any{"connection_trn": conn.TRN})
	}

	cfg := authorchestrator.OAuth2Config{
		Provider:     conn.Connector,
		ClientID:     stringField(auth, "client_id"),
		ClientSecret: stringField(auth, "client_secret"),
		AuthURL:      stringField(auth, "auth_url"),
		TokenURL:     stringField(auth, "token_url"),
		RedirectURL:  stringField(auth, "redirect_url"),
		Scopes:       stringSliceField(auth, "scopes"),
		UsePKCE:      boolField(auth, "use_pkce"),
		GrantType:    stringField(auth, "grant_type"),
	}
	return cfg, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
