package toolproto

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// maxBodyBytes bounds the HTTP transport's request body (spec.md §6: "body
// size bounded (<= 1 MiB)").
const maxBodyBytes = 1 << 20

// protocolVersionHeader is the header carrying the client's requested
// protocol version; mismatches against ProtocolVersion() are rejected.
const protocolVersionHeader = "MCP-Protocol-Version"

// defaultTenantEnv names the environment variable an HTTP caller's tenant
// falls back to when neither X-Tenant nor the request arguments supply one
// (spec.md §4.10, §6 OPENACT_DEFAULT_TENANT).
const defaultTenantEnv = "OPENACT_DEFAULT_TENANT"

// HTTPHandler returns an http.Handler serving POST /mcp (spec.md §6).
func (s *Server) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, Response{JSONRPC: "2.0", Error: &RPCError{
				Code: -32600, Message: "Content-Type must be application/json",
			}})
			return
		}
		if pv := r.Header.Get(protocolVersionHeader); pv != "" && pv != ProtocolVersion() {
			writeJSON(w, http.StatusBadRequest, Response{JSONRPC: "2.0", Error: &RPCError{
				Code: -32600, Message: "unsupported protocol version", Data: map[string]any{"requested": pv, "supported": ProtocolVersion()},
			}})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{JSONRPC: "2.0", Error: &RPCError{Code: -32700, Message: "parse error"}})
			return
		}

		ctx := WithTenant(r.Context(), requestTenant(r))
		resp := s.HandleRequest(ctx, req)
		if req.ID == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		status := http.StatusOK
		if resp.Error != nil {
			if kind := apperrors.Kind(stringFromData(resp.Error.Data, "code")); kind != "" {
				status = kind.HTTPStatus()
			}
		}
		writeJSON(w, status, resp)
	})
}

func requestTenant(r *http.Request) string {
	if t := r.Header.Get("X-Tenant"); t != "" {
		return t
	}
	return os.Getenv(defaultTenantEnv)
}

func stringFromData(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
