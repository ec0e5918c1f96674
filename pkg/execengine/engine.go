package execengine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/authorchestrator"
	"github.com/aionixone/openact-sub001/pkg/binding"
	"github.com/aionixone/openact-sub001/pkg/metrics"
	"github.com/aionixone/openact-sub001/pkg/registry"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// Engine implements the Execution Engine (C9): resolves an action TRN to
// its configuration and bound credential, runs the request, and records
// the outcome (spec.md §4.9).
type Engine struct {
	actions      registry.ActionRepository
	connections  registry.ConnectionRepository
	bindings     binding.Store
	orchestrator *authorchestrator.Orchestrator
	execStore    Store
	http         Sender
	clock        func() time.Time
	metrics      *metrics.Registry
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMetrics attaches a metrics.Registry so every RunActionByTRNWithInput
// call records an execution count and duration observation. Omit it (or
// pass nil) to run without metrics, e.g. in unit tests.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an Engine. httpClient may be nil, defaulting to
// http.DefaultClient.
func New(actions registry.ActionRepository, connections registry.ConnectionRepository, bindings binding.Store, orch *authorchestrator.Orchestrator, execStore Store, httpClient Sender, opts ...Option) *Engine {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	e := &Engine{
		actions:      actions,
		connections:  connections,
		bindings:     bindings,
		orchestrator: orch,
		execStore:    execStore,
		http:         httpClient,
		clock:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunActionByTRNWithInput implements spec.md §4.9's resolve -> authorize ->
// build request -> send (retry/pagination) -> record pipeline.
func (e *Engine) RunActionByTRNWithInput(ctx context.Context, tenant, actionTRN, executionTRN string, input Input) (ExecutionRecord, error) {
	started := e.clock()
	rec := ExecutionRecord{
		ExecutionTRN: executionTRN,
		ActionTRN:    actionTRN,
		Tenant:       tenant,
		Status:       StatusRunning,
		CreatedAt:    started,
	}
	if err := e.execStore.Create(ctx, rec); err != nil {
		return ExecutionRecord{}, err
	}

	result, err := e.run(ctx, tenant, actionTRN, input)
	elapsed := e.clock().Sub(started)
	duration := elapsed.Milliseconds()

	if err != nil {
		msg := err.Error()
		status := StatusFailed
		if apperrors.Is(err, apperrors.KindTimeout) && ctx.Err() == context.Canceled {
			status = StatusCancelled
		}
		_ = e.execStore.Complete(ctx, executionTRN, status, nil, duration, &msg, nil)
		rec.Status = status
		rec.ErrorMessage = &msg
		e.metrics.ObserveExecution(string(status), elapsed.Seconds())
		return rec, err
	}

	_ = e.execStore.Complete(ctx, executionTRN, StatusCompleted, intPtr(result.statusCode), duration, nil, result.output)
	rec.Status = StatusCompleted
	rec.StatusCode = intPtr(result.statusCode)
	rec.DurationMS = int64Ptr(duration)
	rec.OutputData = result.output
	e.metrics.ObserveExecution(string(StatusCompleted), elapsed.Seconds())
	return rec, nil
}

type runResult struct {
	statusCode int
	output     map[string]any
}

func (e *Engine) run(ctx context.Context, tenant, actionTRN string, input Input) (runResult, error) {
	actionParsed, err := trn.Parse(actionTRN)
	if err != nil {
		return runResult{}, err
	}
	action, found, err := e.loadAction(ctx, tenant, actionParsed)
	if err != nil {
		return runResult{}, err
	}
	if !found {
		return runResult{}, apperrors.New(apperrors.KindNotFound, "action not found").WithData(map[string]any{"action_trn": actionTRN})
	}

	connParsed, err := trn.Parse(action.ConnectionTRN)
	if err != nil {
		return runResult{}, err
	}
	connection, found, err := e.loadConnection(ctx, tenant, connParsed)
	if err != nil {
		return runResult{}, err
	}
	if !found {
		return runResult{}, apperrors.New(apperrors.KindNotFound, "connection not found").WithData(map[string]any{"connection_trn": action.ConnectionTRN})
	}

	cfg, err := ParseHTTPActionConfig(connection.Config, action.Config)
	if err != nil {
		return runResult{}, err
	}

	var ref authorchestrator.Ref
	var accessToken string
	if cfg.Auth.Kind == AuthOAuth {
		ref, accessToken, err = e.resolveCredential(ctx, tenant, actionTRN)
		if err != nil {
			return runResult{}, err
		}
	}

	buildReq := func(ctx context.Context, token string) (*http.Request, error) {
		return ComposeRequest(ctx, cfg, input, token)
	}

	var onUnauthorized unauthorizedHook
	if cfg.Auth.Kind == AuthOAuth && e.orchestrator != nil {
		onUnauthorized = func(ctx context.Context) (string, error) {
			return e.orchestrator.InvalidateAndRefresh(ctx, ref)
		}
	}

	retryResult := Send(ctx, e.http, cfg.Retry, buildReq, accessToken, onUnauthorized)
	if retryResult.Response == nil {
		if retryResult.Err == nil {
			retryResult.Err = apperrors.New(apperrors.KindInternal, "retry loop returned no response and no error")
		}
		return runResult{}, retryResult.Err
	}
	resp := retryResult.Response
	defer resp.Body.Close()

	output, err := e.readResponse(resp, cfg)
	if err != nil {
		return runResult{}, err
	}

	if input.Pagination != nil && input.Pagination.AllPages && cfg.Pagination.Mode != PaginationNone {
		items, pages, err := e.paginate(ctx, cfg, input, resp, output, accessToken, onUnauthorized, input.Pagination.MaxPages)
		if err != nil {
			return runResult{}, err
		}
		output["items"] = items
		output["pages_fetched"] = pages
	}

	if retryResult.Err != nil {
		return runResult{statusCode: resp.StatusCode, output: output}, retryResult.Err
	}
	return runResult{statusCode: resp.StatusCode, output: output}, nil
}

func (e *Engine) loadAction(ctx context.Context, tenant string, t trn.TRN) (registry.ActionRecord, bool, error) {
	if t.Version != nil {
		return e.actions.GetVersion(ctx, tenant, t.Connector, t.Name, *t.Version)
	}
	return e.actions.Latest(ctx, tenant, t.Connector, t.Name)
}

func (e *Engine) loadConnection(ctx context.Context, tenant string, t trn.TRN) (registry.ConnectionRecord, bool, error) {
	if t.Version != nil {
		return e.connections.GetVersion(ctx, tenant, t.Connector, t.Name, *t.Version)
	}
	return e.connections.Latest(ctx, tenant, t.Connector, t.Name)
}

// resolveCredential finds the binding for actionTRN and obtains a valid
// access token for it via the Auth Orchestrator (spec.md §4.9.1 steps 3-4).
func (e *Engine) resolveCredential(ctx context.Context, tenant, actionTRN string) (authorchestrator.Ref, string, error) {
	trnCopy := actionTRN
	binds, err := e.bindings.ListByTenant(ctx, tenant, nil, &trnCopy)
	if err != nil {
		return authorchestrator.Ref{}, "", err
	}
	if len(binds) == 0 {
		return authorchestrator.Ref{}, "", apperrors.New(apperrors.KindAuthError, "action has no bound credential").
			WithData(map[string]any{"action_trn": actionTRN})
	}
	authParsed, err := trn.Parse(binds[0].AuthTRN)
	if err != nil {
		return authorchestrator.Ref{}, "", err
	}
	ref := authorchestrator.Ref{Tenant: tenant, Provider: authParsed.Connector, UserID: authParsed.Name}
	token, err := e.orchestrator.GetValidAccessToken(ctx, ref)
	if err != nil {
		return authorchestrator.Ref{}, "", err
	}
	return ref, token, nil
}

// readResponse shapes the HTTP response per spec.md §4.9.4: JSON under
// "body", text wrapped as {"text": "..."}, binary rejected unless allowed
// and within MaxBodyBytes.
func (e *Engine) readResponse(resp *http.Response, cfg HTTPActionConfig) (map[string]any, error) {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 8 * 1024 * 1024
	}
	limited := io.LimitReader(resp.Body, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNetworkError, err, "reading response body")
	}
	if int64(len(data)) > limit {
		return nil, apperrors.New(apperrors.KindResponseTooLarge, "response body exceeds max_body_bytes")
	}

	contentType := resp.Header.Get("Content-Type")
	out := map[string]any{"http": map[string]any{"status_code": resp.StatusCode, "headers": flattenHeader(resp.Header)}}

	switch {
	case strings.Contains(contentType, "application/json") || json.Valid(data) && len(data) > 0:
		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			out["http"].(map[string]any)["text"] = string(data)
			return out, nil
		}
		out["http"].(map[string]any)["body"] = parsed
	case isLikelyText(contentType):
		out["http"].(map[string]any)["text"] = string(data)
	default:
		if !cfg.AllowBinary {
			return nil, apperrors.New(apperrors.KindBinaryNotAllowed, "binary response not allowed for this action")
		}
		out["http"].(map[string]any)["binary_base64"] = data
	}
	return out, nil
}

func isLikelyText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") || contentType == "" ||
		strings.Contains(contentType, "charset=")
}

func flattenHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// paginate walks subsequent pages starting from the first response,
// aggregating items per cfg.Pagination.ItemsExpr and stopping on
// stop_expr, an absent next reference, max_pages, or caller cancellation
// (spec.md §4.9.4, §5 cooperative checkpoints).
func (e *Engine) paginate(ctx context.Context, cfg HTTPActionConfig, input Input, firstResp *http.Response, firstOutput map[string]any, accessToken string, onUnauthorized unauthorizedHook, callerMaxPages int) ([]any, int, error) {
	maxPages := cfg.Pagination.MaxPages
	if callerMaxPages > 0 && (maxPages == 0 || callerMaxPages < maxPages) {
		maxPages = callerMaxPages
	}

	firstBody, _ := json.Marshal(firstOutputBody(firstOutput))
	items := append([]any{}, ExtractItems(firstBody, cfg.Pagination)...)
	pages := 1

	nextInput := input
	nextCfg := cfg
	linkHeader := firstResp.Header.Get("Link")

	for {
		if ctx.Err() != nil {
			return items, pages, apperrors.New(apperrors.KindTimeout, "pagination cancelled")
		}
		if ShouldStop(firstBody, cfg.Pagination) {
			break
		}
		if maxPages > 0 && pages >= maxPages {
			break
		}

		var advanced bool
		nextCfg, nextInput, advanced = advancePage(cfg, nextInput, firstBody, linkHeader)
		if !advanced {
			break
		}

		buildReq := func(ctx context.Context, token string) (*http.Request, error) {
			return ComposeRequest(ctx, nextCfg, nextInput, token)
		}
		result := Send(ctx, e.http, cfg.Retry, buildReq, accessToken, onUnauthorized)
		if result.Response == nil {
			if result.Err != nil {
				return items, pages, result.Err
			}
			break
		}
		body, err := io.ReadAll(io.LimitReader(result.Response.Body, cfg.MaxBodyBytes+1))
		result.Response.Body.Close()
		if err != nil {
			return items, pages, apperrors.Wrap(apperrors.KindNetworkError, err, "reading paginated response body")
		}
		linkHeader = result.Response.Header.Get("Link")
		items = append(items, ExtractItems(body, cfg.Pagination)...)
		pages++
		firstBody = body
	}
	return items, pages, nil
}

func firstOutputBody(output map[string]any) any {
	section, _ := output["http"].(map[string]any)
	if section == nil {
		return nil
	}
	if body, ok := section["body"]; ok {
		return body
	}
	return nil
}

// advancePage computes the config/input pair for the next page, or
// (unchanged, false) when there is no next page. link_header mode
// overrides cfg.URL outright since the discovered link is already
// absolute; the other modes add a query parameter to the existing URL.
func advancePage(cfg HTTPActionConfig, in Input, body []byte, linkHeader string) (HTTPActionConfig, Input, bool) {
	switch cfg.Pagination.Mode {
	case PaginationCursor:
		next, ok := NextCursor(body, cfg.Pagination)
		if !ok {
			return cfg, in, false
		}
		param := cfg.Pagination.ParamName
		if param == "" {
			param = "cursor"
		}
		in.Query = withQueryParam(in.Query, param, next)
		return cfg, in, true
	case PaginationPage:
		param := cfg.Pagination.ParamName
		if param == "" {
			param = "page"
		}
		current := ""
		if vs, ok := in.Query[param]; ok && len(vs) > 0 {
			current = vs[0]
		}
		in.Query = withQueryParam(in.Query, param, strconv.Itoa(nextPageNumber(current)))
		return cfg, in, true
	case PaginationLinkHeader:
		next, ok := NextLink(body, linkHeader, cfg.Pagination)
		if !ok {
			return cfg, in, false
		}
		cfg.URL = next
		in.PathParams = nil
		in.Query = nil
		return cfg, in, true
	default:
		return cfg, in, false
	}
}

func withQueryParam(q map[string][]string, key, value string) map[string][]string {
	out := make(map[string][]string, len(q)+1)
	for k, v := range q {
		out[k] = v
	}
	out[key] = []string{value}
	return out
}
