package execengine_test

import (
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/execengine"
)

func TestComposeRequestSubstitutesPathParams(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{Method: "GET", URL: "https://api.example.com/repos/{owner}/{name}", BodyEncoding: "json"}
	in := execengine.Input{PathParams: map[string]string{"owner": "acme", "name": "widgets"}}

	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	assert.Equal(t, "/repos/acme/widgets", req.URL.Path)
}

func TestComposeRequestMissingPathParamErrors(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{Method: "GET", URL: "https://api.example.com/repos/{owner}", BodyEncoding: "json"}
	_, err := execengine.ComposeRequest(context.Background(), cfg, execengine.Input{}, "")
	require.Error(t, err)
}

func TestComposeRequestMultiValueQueryAppends(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/search", BodyEncoding: "json",
		Query:           map[string][]string{"tag": {"go"}},
		MultiValueQuery: map[string]bool{"tag": true},
	}
	in := execengine.Input{Query: map[string][]string{"tag": {"cli"}}}

	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	tags := req.URL.Query()["tag"]
	assert.ElementsMatch(t, []string{"go", "cli"}, tags)
}

func TestComposeRequestSingleValueHeaderOverrides(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/x", BodyEncoding: "json",
		Headers: map[string][]string{"x-trace": {"default"}},
	}
	in := execengine.Input{Headers: map[string][]string{"x-trace": {"override"}}}

	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"override"}, req.Header.Values("x-trace"))
}

func TestComposeRequestStripsDeniedAndReservedHeaders(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/x", BodyEncoding: "json",
		DeniedHeaders:   []string{"Host"},
		ReservedHeaders: []string{"Authorization"},
	}
	in := execengine.Input{Headers: map[string][]string{"Host": {"evil.example.com"}, "Authorization": {"Bearer user-supplied"}}}

	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Host"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestComposeRequestOAuthInjectsBearerToken(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/x", BodyEncoding: "json",
		Auth: execengine.AuthConfig{Kind: execengine.AuthOAuth},
	}
	req, err := execengine.ComposeRequest(context.Background(), cfg, execengine.Input{}, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
}

func TestComposeRequestOAuthWithoutTokenErrors(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/x", BodyEncoding: "json",
		Auth: execengine.AuthConfig{Kind: execengine.AuthOAuth},
	}
	_, err := execengine.ComposeRequest(context.Background(), cfg, execengine.Input{}, "")
	require.Error(t, err)
}

func TestComposeRequestBasicAuth(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/x", BodyEncoding: "json",
		Auth: execengine.AuthConfig{Kind: execengine.AuthBasic, Username: "alice", Password: "secret"},
	}
	req, err := execengine.ComposeRequest(context.Background(), cfg, execengine.Input{}, "")
	require.NoError(t, err)
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
}

func TestComposeRequestAPIKeyInQuery(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{
		Method: "GET", URL: "https://api.example.com/x", BodyEncoding: "json",
		Auth: execengine.AuthConfig{Kind: execengine.AuthAPIKey, HeaderName: "api_key", HeaderIn: "query", StaticKey: "k-1"},
	}
	req, err := execengine.ComposeRequest(context.Background(), cfg, execengine.Input{}, "")
	require.NoError(t, err)
	assert.Equal(t, "k-1", req.URL.Query().Get("api_key"))
}

func TestComposeRequestJSONBody(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{Method: "POST", URL: "https://api.example.com/x", BodyEncoding: "json"}
	in := execengine.Input{Body: map[string]any{"name": "widget"}}
	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	body, _ := io.ReadAll(req.Body)
	assert.JSONEq(t, `{"name":"widget"}`, string(body))
}

func TestComposeRequestFormURLEncodedBodyFlattensNesting(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{Method: "POST", URL: "https://api.example.com/x", BodyEncoding: "form"}
	in := execengine.Input{Body: map[string]any{
		"user": map[string]any{"name": "alice"},
		"tags": []any{"a", "b"},
	}}
	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(req.Body)
	values, err := url.ParseQuery(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "alice", values.Get("user[name]"))
	assert.ElementsMatch(t, []string{"a", "b"}, values["tags"])
}

func TestComposeRequestMultipartBody(t *testing.T) {
	t.Parallel()
	cfg := execengine.HTTPActionConfig{Method: "POST", URL: "https://api.example.com/x", BodyEncoding: "json"}
	in := execengine.Input{Multipart: &execengine.MultipartInput{Fields: map[string]string{"caption": "hi"}}}
	req, err := execengine.ComposeRequest(context.Background(), cfg, in, "")
	require.NoError(t, err)
	assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data")
}
