// Package httpapi implements the HTTP API façade (spec.md §6): a REST
// surface over the Registry, Binding Manager, Auth Orchestrator, and
// Execution Engine, routed with the teacher's own go-chi router.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/appwire"
)

// routes bundles the component graph every handler needs.
type routes struct {
	app *appwire.App
}

// NewRouter assembles the full /v1 surface over app.
func NewRouter(app *appwire.App) http.Handler {
	rt := &routes{app: app}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(app.Config.HTTPTimeout()))

	r.Get("/healthz", rt.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/actions", func(r chi.Router) {
			r.Post("/import", rt.importActions)
			r.Get("/export", rt.exportActions)
			r.Get("/", rt.listActions)
			r.Post("/run", rt.runAction)
		})
		r.Route("/bindings", func(r chi.Router) {
			r.Post("/", rt.bind)
			r.Delete("/", rt.unbind)
			r.Get("/", rt.listBindings)
		})
		r.Route("/auth", func(r chi.Router) {
			r.Post("/begin", rt.authBegin)
			r.Post("/resume", rt.authResume)
			r.Post("/refresh", rt.authRefresh)
			r.Get("/{provider}/{userID}", rt.authGet)
			r.Delete("/{provider}/{userID}", rt.authRevoke)
			r.Get("/flows/{trn}", rt.authFlowStatus)
		})
		r.Get("/executions/{trn}", rt.executionStatus)
	})

	return r
}

func (rt *routes) healthz(w http.ResponseWriter, r *http.Request) {
	if err := rt.app.DB.PingContext(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apperrors.Envelope{OK: true, Data: map[string]any{"status": "ok"}})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError converts err to the wire envelope (spec.md §7) and picks an
// HTTP status from its apperrors.Kind.
func writeError(w http.ResponseWriter, err error) {
	env := apperrors.ToEnvelope(err)
	status := http.StatusInternalServerError
	if env.Error != nil {
		status = apperrors.Kind(env.Error.Code).HTTPStatus()
	}
	writeJSON(w, status, env)
}

// writeOK writes a successful envelope with HTTP 200.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, apperrors.Envelope{OK: true, Data: data})
}

// decodeJSON bounds and decodes the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.KindInvalidArguments, err, "decoding request body")
	}
	return nil
}

const maxRequestBodyBytes = 8 << 20
