package execengine

import (
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// ParseHTTPActionConfig merges a connection's config (base_url, shared
// headers, auth) with an action's config (method, path, overrides) into a
// single typed HTTPActionConfig. Action fields win over connection fields
// on overlapping keys.
func ParseHTTPActionConfig(connectionConfig, actionConfig map[string]any) (HTTPActionConfig, error) {
	cfg := HTTPActionConfig{
		BodyEncoding: "json",
		Retry:        DefaultRetryPolicy(),
	}

	baseURL := getString(connectionConfig, "base_url", "")
	path := getString(actionConfig, "path", "")
	if url := getString(actionConfig, "url", ""); url != "" {
		cfg.URL = url
	} else {
		cfg.URL = baseURL + path
	}
	if cfg.URL == "" {
		return HTTPActionConfig{}, apperrors.New(apperrors.KindInvalidArguments, "action config has no url or base_url+path")
	}

	cfg.Method = getString(actionConfig, "method", "GET")

	cfg.Headers = mergeStringSliceMaps(getHeaderMap(connectionConfig, "headers"), getHeaderMap(actionConfig, "headers"))
	cfg.Query = mergeStringSliceMaps(getHeaderMap(connectionConfig, "query"), getHeaderMap(actionConfig, "query"))
	if b, ok := actionConfig["body"]; ok {
		cfg.Body = b
	} else if b, ok := connectionConfig["body"]; ok {
		cfg.Body = b
	}

	cfg.MultiValueHeaders = getBoolSet(actionConfig, "multi_value_headers")
	cfg.MultiValueQuery = getBoolSet(actionConfig, "multi_value_query")
	if cfg.MultiValueHeaders == nil {
		cfg.MultiValueHeaders = getBoolSet(connectionConfig, "multi_value_headers")
	}
	if cfg.MultiValueQuery == nil {
		cfg.MultiValueQuery = getBoolSet(connectionConfig, "multi_value_query")
	}

	if enc := getString(actionConfig, "body_encoding", ""); enc != "" {
		cfg.BodyEncoding = enc
	} else if enc := getString(connectionConfig, "body_encoding", ""); enc != "" {
		cfg.BodyEncoding = enc
	}

	cfg.DeniedHeaders = firstNonEmptyStringSlice(getStringSlice(actionConfig, "denied_headers"), getStringSlice(connectionConfig, "denied_headers"), []string{"Host"})
	cfg.ReservedHeaders = firstNonEmptyStringSlice(getStringSlice(actionConfig, "reserved_headers"), getStringSlice(connectionConfig, "reserved_headers"), []string{"Authorization"})

	auth, err := parseAuthConfig(connectionConfig, actionConfig)
	if err != nil {
		return HTTPActionConfig{}, err
	}
	cfg.Auth = auth

	if retryRaw, ok := mapField(actionConfig, connectionConfig, "retry"); ok {
		cfg.Retry = parseRetryPolicy(retryRaw)
	}
	if pagRaw, ok := mapField(actionConfig, connectionConfig, "pagination"); ok {
		cfg.Pagination = parsePaginationConfig(pagRaw)
	}

	cfg.ConnectTimeout = getDuration(actionConfig, "connect_timeout_ms", 0)
	cfg.ReadTimeout = getDuration(actionConfig, "read_timeout_ms", 0)
	cfg.TotalTimeout = getDuration(actionConfig, "total_timeout_ms", 30*time.Second)

	cfg.AllowBinary = getBool(actionConfig, "allow_binary", false)
	cfg.MaxBodyBytes = getInt64(actionConfig, "max_body_bytes", 8*1024*1024)

	return cfg, nil
}

func mapField(primary, secondary map[string]any, key string) (map[string]any, bool) {
	if m, ok := primary[key].(map[string]any); ok {
		return m, true
	}
	if m, ok := secondary[key].(map[string]any); ok {
		return m, true
	}
	return nil, false
}

func parseAuthConfig(connectionConfig, actionConfig map[string]any) (AuthConfig, error) {
	raw, ok := mapField(actionConfig, connectionConfig, "auth")
	if !ok {
		return AuthConfig{Kind: AuthNone}, nil
	}
	kind := AuthKind(getString(raw, "kind", string(AuthNone)))
	switch kind {
	case AuthNone, AuthAPIKey, AuthBasic, AuthOAuth:
	default:
		return AuthConfig{}, apperrors.Newf(apperrors.KindInvalidArguments, "unknown auth kind %q", kind)
	}
	return AuthConfig{
		Kind:       kind,
		HeaderName: getString(raw, "header_name", "X-Api-Key"),
		HeaderIn:   getString(raw, "in", "header"),
		StaticKey:  getString(raw, "key", ""),
		Username:   getString(raw, "username", ""),
		Password:   getString(raw, "password", ""),
	}, nil
}

func parseRetryPolicy(raw map[string]any) RetryPolicy {
	p := DefaultRetryPolicy()
	if v, ok := raw["max_attempts"]; ok {
		p.MaxAttempts = int(toFloat(v))
	}
	if v, ok := raw["base_delay_ms"]; ok {
		p.BaseDelay = time.Duration(toFloat(v)) * time.Millisecond
	}
	if v, ok := raw["max_delay_ms"]; ok {
		p.MaxDelay = time.Duration(toFloat(v)) * time.Millisecond
	}
	if v := getStringSlice(raw, "retry_on"); v != nil {
		p.RetryOn = v
	}
	if v, ok := raw["respect_retry_after"]; ok {
		p.RespectRetryAfter, _ = v.(bool)
	}
	if v := getString(raw, "jitter", ""); v != "" {
		p.Jitter = JitterStrategy(v)
	}
	if v, ok := raw["backoff_rate"]; ok {
		p.BackoffRate = toFloat(v)
	}
	if v, ok := raw["total_timeout_ms"]; ok {
		p.TotalTimeout = time.Duration(toFloat(v)) * time.Millisecond
	}
	return p
}

func parsePaginationConfig(raw map[string]any) PaginationConfig {
	return PaginationConfig{
		Mode:      PaginationMode(getString(raw, "mode", "")),
		NextExpr:  getString(raw, "next_expr", ""),
		LinkExpr:  getString(raw, "link_expr", ""),
		StopExpr:  getString(raw, "stop_expr", ""),
		ItemsExpr: getString(raw, "items_expr", ""),
		MaxPages:  int(toFloat(raw["max_pages"])),
		ParamName: getString(raw, "param_name", ""),
	}
}

func getString(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func getBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func getInt64(m map[string]any, key string, def int64) int64 {
	if v, ok := m[key]; ok {
		return int64(toFloat(v))
	}
	return def
}

func getDuration(m map[string]any, key string, def time.Duration) time.Duration {
	if v, ok := m[key]; ok {
		return time.Duration(toFloat(v)) * time.Millisecond
	}
	return def
}

func getStringSlice(m map[string]any, key string) []string {
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

func firstNonEmptyStringSlice(candidates ...[]string) []string {
	for _, c := range candidates {
		if len(c) > 0 {
			return c
		}
	}
	return nil
}

func getBoolSet(m map[string]any, key string) map[string]bool {
	names := getStringSlice(m, key)
	if names == nil {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func getHeaderMap(m map[string]any, key string) map[string][]string {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = []string{val}
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					out[k] = append(out[k], s)
				}
			}
		}
	}
	return out
}

func mergeStringSliceMaps(base, override map[string][]string) map[string][]string {
	out := make(map[string][]string, len(base)+len(override))
	for k, v := range base {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range override {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
