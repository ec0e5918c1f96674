package registry

import "strings"

// sensitiveSubstrings is the case-insensitive key-substring list that
// marks a leaf value for redaction on export (spec.md §4.7, grounded on
// the original Rust implementation's manager.rs redaction list).
var sensitiveSubstrings = []string{
	"password", "token", "secret", "api_key", "apikey", "credential",
	"authorization", "cert", "signature", "private_key", "access_key",
}

const redactedPlaceholder = "***REDACTED***"

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redactConfig returns a deep copy of config with every leaf value under a
// sensitive-looking key replaced by a fixed placeholder. Nested maps and
// slices are recursed into but never themselves redacted — only their
// leaves are.
func redactConfig(config map[string]any) map[string]any {
	return redactMap(config).(map[string]any)
}

func redactMap(in map[string]any) any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			out[k] = redactLeafOrRecurse(v)
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

// redactLeafOrRecurse handles a value whose *key* was flagged sensitive: a
// scalar leaf becomes the placeholder, but a nested structure is still
// walked (only its own leaves get redacted, by key, same as anywhere
// else) rather than being blanket-replaced.
func redactLeafOrRecurse(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val)
	case []any:
		return redactSlice(val)
	default:
		return redactedPlaceholder
	}
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val)
	case []any:
		return redactSlice(val)
	default:
		return val
	}
}

func redactSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = redactValue(v)
	}
	return out
}
