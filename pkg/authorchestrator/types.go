// Package authorchestrator implements the Auth Orchestrator (C5): composes
// the Encryption Service, Credential Store, and Flow Engine into
// begin/resume/refresh/obtain operations, and answers "give me a valid
// access token for this connection now".
package authorchestrator

import (
	"time"

	"github.com/aionixone/openact-sub001/pkg/credstore"
)

// OAuth2Config is the subset of a ConnectionConfig's "config" object this
// package understands for OAuth2 authorization-code + PKCE, refresh, and
// client-credentials flows.
type OAuth2Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	UsePKCE      bool
	// GrantType is "authorization_code" (default) or "client_credentials".
	GrantType string
}

// grantClientCredentials selects the two-legged, no-browser obtain flow
// instead of the authorization-code + PKCE round-trip (spec.md §4.4,
// §4.5 step 4).
const grantClientCredentials = "client_credentials"

// PATConfig describes a personal-access-token / static-bearer connection.
type PATConfig struct {
	Provider string
}

// PendingAuth is returned by BeginOAuthFromConfig. For the
// authorization-code grant it carries the URL the end user must visit plus
// the CSRF state nonce the eventual callback must carry. The
// client_credentials grant has no browser step: it completes synchronously,
// so Completed is true and ConnectionTRN names the connection BeginOAuthFromConfig
// already persisted; AuthorizeURL/State/NextState are empty in that case.
type PendingAuth struct {
	AuthorizeURL  string
	State         string
	FlowName      string
	NextState     string
	Completed     bool
	ConnectionTRN string
}

// clock is overridable for deterministic tests.
var nowFunc = time.Now

// Ref re-exports credstore.Ref for callers that only import this package.
type Ref = credstore.Ref
