package toolproto

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/execengine"
	"github.com/aionixone/openact-sub001/pkg/registry"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// contextKey namespaces values this package stores on a context.Context.
type contextKey string

const tenantContextKey contextKey = "toolproto.tenant"

// WithTenant returns a copy of ctx carrying tenant, for transports to seed
// from an X-Tenant header or OPENACT_DEFAULT_TENANT before dispatching.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

func tenantFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tenantContextKey).(string)
	return t, ok && t != ""
}

// Server dispatches JSON-RPC requests to the tools/* and lifecycle methods
// (spec.md §4.10). It is transport-agnostic: stdio and HTTP front ends
// both call HandleRequest.
type Server struct {
	actions       registry.ActionRepository
	engine        *execengine.Engine
	governance    *Governance
	requireTenant bool
	serverName    string
	serverVersion string
}

// NewServer constructs a Server. gov must not be nil.
func NewServer(actions registry.ActionRepository, engine *execengine.Engine, gov *Governance, requireTenant bool) *Server {
	return &Server{
		actions:       actions,
		engine:        engine,
		governance:    gov,
		requireTenant: requireTenant,
		serverName:    "openact",
		serverVersion: "1.0.0",
	}
}

// HandleRequest dispatches one JSON-RPC request and returns its response.
// For notifications (ID == nil) the caller should not write the returned
// Response back to the transport.
func (s *Server) HandleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return s.reply(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion(),
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
			ServerInfo:      ServerInfo{Name: s.serverName, Version: s.serverVersion},
		})
	case "ping":
		return s.reply(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(ctx, req.ID)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return s.errorReply(req.ID, apperrors.KindNotFound, -32601, "method not found: "+req.Method, nil)
	}
}

func (s *Server) handleToolsList(ctx context.Context, id any) Response {
	tenant, ok := tenantFromContext(ctx)
	if !ok {
		tenant = "default"
	}
	entries, err := BuildCatalog(ctx, s.actions, tenant, s.governance)
	if err != nil {
		return s.errFrom(id, err)
	}
	tools := make([]Tool, 0, len(entries)+1)
	tools = append(tools, executeTool())
	for _, e := range entries {
		tools = append(tools, e.tool)
	}
	return s.reply(id, ToolsListResult{Tools: tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	var params ToolsCallParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.errorReply(req.ID, apperrors.KindInvalidArguments, -32602, "invalid params", nil)
		}
	}
	if params.Name == "" {
		return s.errorReply(req.ID, apperrors.KindInvalidArguments, -32602, "missing tool name", nil)
	}

	tenant, err := s.resolveTenant(ctx, params.Arguments)
	if err != nil {
		return s.errFrom(req.ID, err)
	}

	if !s.governance.Allowed(params.Name) {
		return s.errFrom(req.ID, apperrors.New(apperrors.KindPermissionDenied, "tool denied by governance policy").
			WithData(map[string]any{"tool": params.Name}))
	}

	releaseCtx, release, err := s.governance.Acquire(ctx)
	if err != nil {
		return s.errFrom(req.ID, err)
	}
	defer release()

	actionTRN, input, err := s.resolveCall(releaseCtx, tenant, params.Name, params.Arguments)
	if err != nil {
		return s.errFrom(req.ID, err)
	}

	executionTRN := trn.New(tenant, trn.KindExecution, "toolproto", uuid.NewString()).Format()
	rec, runErr := s.engine.RunActionByTRNWithInput(releaseCtx, tenant, actionTRN, executionTRN, input)
	if runErr != nil {
		return s.reply(req.ID, ToolsCallResult{
			IsError: true,
			Content: []ContentBlock{{Type: "text", Text: runErr.Error()}},
		})
	}
	return s.reply(req.ID, ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: summarizeExecution(rec)}}})
}

// resolveCall maps a requested tool name and its arguments onto an action
// TRN and an execengine.Input. The generic openact.execute tool requires
// action_trn or (connector, action, version) with an explicit version; any
// other name must resolve through the registry's alias/connector.action
// catalog.
func (s *Server) resolveCall(ctx context.Context, tenant, toolName string, args map[string]any) (string, execengine.Input, error) {
	if toolName == executeToolName {
		return resolveExecuteArgs(tenant, args)
	}

	entries, err := BuildCatalog(ctx, s.actions, tenant, s.governance)
	if err != nil {
		return "", execengine.Input{}, err
	}
	for _, e := range entries {
		if e.tool.Name == toolName {
			return e.actionTRN, inputFromArguments(args), nil
		}
	}
	return "", execengine.Input{}, apperrors.New(apperrors.KindNotFound, "unknown tool").
		WithData(map[string]any{"tool": toolName})
}

func resolveExecuteArgs(tenant string, args map[string]any) (string, execengine.Input, error) {
	if actionTRN, ok := stringArg(args, "action_trn"); ok && actionTRN != "" {
		return actionTRN, inputFromArguments(args), nil
	}

	connector, hasConnector := stringArg(args, "connector")
	action, hasAction := stringArg(args, "action")
	if !hasConnector || !hasAction {
		return "", execengine.Input{}, apperrors.New(apperrors.KindInvalidArguments,
			"openact.execute requires action_trn, or connector+action+version")
	}
	version, hasVersion := intArg(args, "version")
	if !hasVersion || version <= 0 {
		return "", execengine.Input{}, apperrors.New(apperrors.KindInvalidArguments,
			"openact.execute requires an explicit version when resolving by connector/action; no implicit latest")
	}
	actionTRN := trn.New(tenant, trn.KindAction, connector, action).WithVersion(version).Format()
	return actionTRN, inputFromArguments(args), nil
}

func inputFromArguments(args map[string]any) execengine.Input {
	raw, ok := args["input"].(map[string]any)
	if !ok {
		return execengine.Input{}
	}
	in := execengine.Input{
		Body:       raw["body"],
		PathParams: stringMapArg(raw, "path_params"),
		Query:      stringListMapArg(raw, "query"),
		Headers:    stringListMapArg(raw, "headers"),
		Multipart:  multipartArg(raw, "_multipart"),
		Pagination: paginationArg(raw, "pagination"),
	}
	return in
}

func stringMapArg(raw map[string]any, key string) map[string]string {
	m, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if sv, ok := v.(string); ok {
			out[k] = sv
		}
	}
	return out
}

// stringListMapArg accepts either a single string or a JSON array of
// strings per key, so callers don't have to wrap single-valued
// query/header entries in a list.
func stringListMapArg(raw map[string]any, key string) map[string][]string {
	m, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case string:
			out[k] = []string{vv}
		case []any:
			vals := make([]string, 0, len(vv))
			for _, item := range vv {
				if sv, ok := item.(string); ok {
					vals = append(vals, sv)
				}
			}
			out[k] = vals
		}
	}
	return out
}

func multipartArg(raw map[string]any, key string) *execengine.MultipartInput {
	m, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	return &execengine.MultipartInput{
		Fields: stringMapArg(m, "fields"),
		Files:  stringMapArg(m, "files"),
	}
}

func paginationArg(raw map[string]any, key string) *execengine.PaginationRequest {
	m, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	allPages, _ := m["all_pages"].(bool)
	maxPages, _ := intArg(m, "max_pages")
	return &execengine.PaginationRequest{AllPages: allPages, MaxPages: int(maxPages)}
}

func (s *Server) resolveTenant(ctx context.Context, args map[string]any) (string, error) {
	if tenant, ok := stringArg(args, "tenant"); ok && tenant != "" {
		return tenant, nil
	}
	if tenant, ok := tenantFromContext(ctx); ok {
		return tenant, nil
	}
	if s.requireTenant {
		return "", apperrors.New(apperrors.KindInvalidArguments, "tenant is required and was not supplied")
	}
	return "default", nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func summarizeExecution(rec execengine.ExecutionRecord) string {
	b, err := json.Marshal(map[string]any{
		"execution_trn": rec.ExecutionTRN,
		"status":        rec.Status,
		"status_code":   rec.StatusCode,
		"output":        rec.OutputData,
	})
	if err != nil {
		return string(rec.Status)
	}
	return string(b)
}

func (s *Server) reply(id any, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) errorReply(id any, kind apperrors.Kind, code int, message string, data map[string]any) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: mergeErrData(data, kind)}}
}

func (s *Server) errFrom(id any, err error) Response {
	kind := apperrors.KindOf(err)
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{
		Code:    kind.JSONRPCCode(),
		Message: err.Error(),
		Data:    mergeErrData(nil, kind),
	}}
}

func mergeErrData(data map[string]any, kind apperrors.Kind) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["code"] = string(kind)
	return out
}
