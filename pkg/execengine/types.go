// Package execengine implements the Execution Engine (C9): resolves an
// action TRN to its bound credential, composes an HTTP request from the
// action's configuration and caller-supplied input, sends it under a
// retry/pagination policy, and records a structured ExecutionRecord.
package execengine

import "time"

// AuthKind selects how a request is authenticated, per spec.md §4.9.2.
type AuthKind string

// Recognized auth kinds.
const (
	AuthNone   AuthKind = "none"
	AuthAPIKey AuthKind = "api_key"
	AuthBasic  AuthKind = "basic"
	AuthOAuth  AuthKind = "oauth"
)

// AuthConfig describes how to inject credentials into a composed request.
// ApiKey and Basic carry their own static material (sourced from the
// connection's config); OAuth defers to the access token the engine
// obtains from the Auth Orchestrator at call time.
type AuthConfig struct {
	Kind AuthKind

	// ApiKey
	HeaderName string // default "X-Api-Key"
	HeaderIn   string // "header" (default) or "query"
	StaticKey  string

	// Basic
	Username string
	Password string
}

// JitterStrategy names a retry backoff jitter shape (spec.md §4.9.3).
type JitterStrategy string

// Recognized jitter strategies.
const (
	JitterNone  JitterStrategy = "none"
	JitterFull  JitterStrategy = "full"
	JitterEqual JitterStrategy = "equal"
)

// RetryPolicy configures the send/retry loop.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryOn           []string // "5xx", "429", or an explicit status code like "503"
	RespectRetryAfter bool
	Jitter            JitterStrategy
	BackoffRate       float64
	TotalTimeout      time.Duration // 0 means no overall deadline beyond ctx
}

// DefaultRetryPolicy returns spec.md §4.9.3's documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		RetryOn:           []string{"5xx", "429"},
		RespectRetryAfter: true,
		Jitter:            JitterFull,
		BackoffRate:       2.0,
	}
}

// PaginationMode selects how the engine discovers the next page.
type PaginationMode string

// Recognized pagination modes.
const (
	PaginationNone       PaginationMode = ""
	PaginationCursor     PaginationMode = "cursor"
	PaginationPage       PaginationMode = "page"
	PaginationLinkHeader PaginationMode = "link_header"
)

// PaginationConfig declares how to walk and aggregate multi-page responses.
type PaginationConfig struct {
	Mode      PaginationMode
	NextExpr  string // gjson path yielding the next cursor/page value
	LinkExpr  string // gjson path into the body yielding the next URL; link_header mode falls back to the Link header
	StopExpr  string // gjson path; truthy means stop
	ItemsExpr string // gjson path yielding the page's item array to aggregate
	MaxPages  int    // 0 means "no engine-imposed cap beyond the caller's request"
	ParamName string // query param carrying the cursor/page value on the next request; defaults per Mode
}

// HTTPActionConfig is the fully-resolved, typed view of an action's
// "config" object (spec.md §4.9.2), merged from the action and its
// connection.
type HTTPActionConfig struct {
	Method string
	URL    string // may contain "{path_param}" placeholders

	Headers           map[string][]string
	Query             map[string][]string
	Body              any
	MultiValueHeaders map[string]bool
	MultiValueQuery   map[string]bool

	// BodyEncoding is "json" (default) or "form" (application/x-www-form-urlencoded).
	// Multipart is selected per-call by the presence of Input.Multipart.
	BodyEncoding string

	DeniedHeaders   []string
	ReservedHeaders []string

	Auth AuthConfig

	Retry      RetryPolicy
	Pagination PaginationConfig

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration

	AllowBinary  bool
	MaxBodyBytes int64
}

// MultipartInput carries a _multipart body: plain fields plus files
// referenced by filesystem path.
type MultipartInput struct {
	Fields map[string]string
	Files  map[string]string // field name -> filesystem path
}

// PaginationRequest is the caller's per-call pagination ask.
type PaginationRequest struct {
	AllPages bool
	MaxPages int
}

// Input is the caller-supplied, per-call override layer composed on top of
// an action's default config (spec.md §4.9.2).
type Input struct {
	PathParams map[string]string
	Query      map[string][]string
	Headers    map[string][]string
	Body       any
	Multipart  *MultipartInput
	Pagination *PaginationRequest
}
