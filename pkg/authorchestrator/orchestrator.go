package authorchestrator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/credstore"
	"github.com/aionixone/openact-sub001/pkg/flowengine"
	"github.com/aionixone/openact-sub001/pkg/logger"
	"github.com/aionixone/openact-sub001/pkg/metrics"
)

// Orchestrator implements the Auth Orchestrator (C5). It composes a
// credential store, the flow engine, and a singleflight group so that N
// concurrent callers asking for the same connection's access token collapse
// into one upstream refresh (spec.md §8 property #4).
type Orchestrator struct {
	store   credstore.Store
	engine  *flowengine.Engine
	handler *taskHandler
	pending *pendingStore

	refreshGroup singleflight.Group

	maxSteps int
	metrics  *metrics.Registry
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithHTTPClient overrides the http.Client used for outbound OAuth2 calls
// (token exchange/refresh/client-credentials). Primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.handler = newTaskHandler(c) }
}

// WithPendingSessionTTL bounds how long a begun-but-not-completed OAuth
// session stays redeemable before its state nonce is treated as expired.
func WithPendingSessionTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.pending = newPendingStore(d) }
}

// WithMetrics attaches a metrics.Registry so every refresh/obtain attempt
// is counted by outcome. Omit it (or pass nil) to run without metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an Orchestrator over store.
func New(store credstore.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		engine:   flowengine.New(),
		handler:  newTaskHandler(nil),
		pending:  newPendingStore(0),
		maxSteps: 32,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BeginOAuthFromConfig starts the OAuth2 flow cfg.GrantType names
// (spec.md §4.4). The default, "authorization_code", generates a CSRF
// state nonce (and a PKCE verifier/challenge when cfg.UsePKCE is set),
// runs the flow engine until it suspends at await_callback, parks the
// paused session keyed by the state nonce, and returns the URL the caller
// should redirect the end user to. "client_credentials" has no browser
// step: it obtains and persists a token synchronously.
func (o *Orchestrator) BeginOAuthFromConfig(ctx context.Context, ref Ref, cfg OAuth2Config) (PendingAuth, error) {
	if cfg.GrantType == grantClientCredentials {
		conn, err := o.obtainClientCredentials(ctx, ref, cfg)
		if err != nil {
			return PendingAuth{}, err
		}
		return PendingAuth{FlowName: clientCredentialsFlowName, Completed: true, ConnectionTRN: conn.TRN}, nil
	}

	state, err := randomToken(32)
	if err != nil {
		return PendingAuth{}, apperrors.Wrap(apperrors.KindInternal, err, "failed to generate state nonce")
	}

	flowCtx := flowengine.Context{
		"client_id":     cfg.ClientID,
		"client_secret": cfg.ClientSecret,
		"auth_url":      cfg.AuthURL,
		"token_url":     cfg.TokenURL,
		"redirect_url":  cfg.RedirectURL,
		"scopes":        toAnySlice(cfg.Scopes),
		"state":         state,
	}

	var verifier, challenge string
	if cfg.UsePKCE {
		verifier, err = randomToken(48)
		if err != nil {
			return PendingAuth{}, apperrors.Wrap(apperrors.KindInternal, err, "failed to generate PKCE verifier")
		}
		challenge = pkceChallengeS256(verifier)
		flowCtx["pkce_verifier"] = verifier
	}

	flow := buildStandardOAuthFlow()
	out := o.engine.RunUntilPauseOrEnd(flow, "", flowCtx, o.handler, o.maxSteps)
	if out.Kind != flowengine.OutcomePending {
		return PendingAuth{}, engineOutcomeToError(out)
	}

	o.pending.put(state, &pendingSession{
		Ref:       ref,
		Flow:      flow,
		NextState: out.NextState,
		Context:   out.PendingContext,
		CreatedAt: nowFunc(),
	})

	authorizeURL := buildAuthorizeURL(cfg, state, challenge)
	return PendingAuth{AuthorizeURL: authorizeURL, State: state, FlowName: flow.Name, NextState: out.NextState}, nil
}

// CompleteOAuthWithCallback redeems a browser redirect's ?code=&state=
// pair: it looks up the paused session by state (rejecting unrecognized or
// expired ones per spec.md §4.5), resumes the flow with the callback
// injected into context, and on success persists the resulting
// AuthConnection via Put.
func (o *Orchestrator) CompleteOAuthWithCallback(ctx context.Context, state, code string) (credstore.AuthConnection, error) {
	session, err := o.pending.take(state)
	if err != nil {
		return credstore.AuthConnection{}, err
	}

	resumed := session.Context.Clone()
	resumed["callback"] = map[string]any{"code": code, "state": state}

	out := o.engine.RunUntilPauseOrEnd(session.Flow, session.NextState, resumed, o.handler, o.maxSteps)
	if out.Kind != flowengine.OutcomeFinished {
		return credstore.AuthConnection{}, engineOutcomeToError(out)
	}

	conn, err := tokenResultToConnection(out.FinalContext, "exchange_code", session.Ref)
	if err != nil {
		return credstore.AuthConnection{}, err
	}
	conn.Extra = map[string]any{"oauth2_config": oauth2ConfigExtra(session.Context)}
	return o.store.Put(ctx, conn)
}

// CreatePATConnection stores a static bearer/personal-access-token
// connection directly, bypassing the flow engine entirely (there is no
// browser round-trip for a PAT). If token is JWT-shaped, its "exp" claim
// becomes the connection's ExpiresAt so GetValidAccessToken's
// expiring-soon check applies to PATs too; opaque bearer tokens get no
// expiry.
func (o *Orchestrator) CreatePATConnection(ctx context.Context, ref Ref, token string, extra map[string]any) (credstore.AuthConnection, error) {
	if token == "" {
		return credstore.AuthConnection{}, apperrors.New(apperrors.KindInvalidArguments, "personal access token must not be empty")
	}
	conn := credstore.AuthConnection{
		TRN:         ref.ConnectionKey(),
		Tenant:      ref.Tenant,
		Provider:    ref.Provider,
		UserID:      ref.UserID,
		AccessToken: token,
		TokenType:   "Bearer",
		Extra:       extra,
		ExpiresAt:   jwtExpiry(token),
	}
	return o.store.Put(ctx, conn)
}

// jwtExpiry inspects token for a JWT "exp" claim without verifying its
// signature — this package has no way to hold every provider's signing key,
// but a PAT that happens to be JWT-shaped still tells us when it expires.
// Non-JWT bearer tokens (the common case) return nil, meaning "never
// expires" as far as this connection is concerned.
func jwtExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// RefreshConnection unconditionally runs the refresh_token flow for ref's
// current connection and persists the result, regardless of whether the
// current token is actually close to expiry. Callers that only want a
// refresh-if-needed should use GetValidAccessToken instead.
func (o *Orchestrator) RefreshConnection(ctx context.Context, ref Ref) (credstore.AuthConnection, error) {
	v, err, _ := o.refreshGroup.Do(ref.ConnectionKey(), func() (any, error) {
		return o.doRefresh(ctx, ref)
	})
	if err != nil {
		return credstore.AuthConnection{}, err
	}
	return v.(credstore.AuthConnection), nil
}

func (o *Orchestrator) doRefresh(ctx context.Context, ref Ref) (conn credstore.AuthConnection, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		o.metrics.ObserveRefresh(status)
	}()

	current, found, err := o.store.Get(ctx, ref)
	if err != nil {
		return credstore.AuthConnection{}, err
	}
	if !found {
		return credstore.AuthConnection{}, apperrors.New(apperrors.KindNotFound, "no connection to refresh").
			WithData(map[string]any{"ref": ref.ConnectionKey()})
	}

	cfgExtra, _ := current.Extra["oauth2_config"].(map[string]any)

	if current.RefreshToken == "" {
		// spec.md §4.5 step 4: no refresh token, but a client_credentials
		// connection doesn't need one — obtain a fresh token instead of
		// erroring.
		if grantType, _ := cfgExtra["grant_type"].(string); grantType == grantClientCredentials {
			return o.reobtainClientCredentials(ctx, ref, current, cfgExtra)
		}
		return credstore.AuthConnection{}, apperrors.New(apperrors.KindAuthError, "connection has no refresh token").
			WithData(map[string]any{"reason": apperrors.SubNoRefreshToken})
	}

	flowCtx := flowengine.Context{"refresh_token": current.RefreshToken}
	for k, v := range cfgExtra {
		flowCtx[k] = v
	}

	out := o.engine.RunUntilPauseOrEnd(buildRefreshFlow(), "", flowCtx, o.handler, o.maxSteps)
	if out.Kind != flowengine.OutcomeFinished {
		return credstore.AuthConnection{}, engineOutcomeToError(out)
	}

	updated, err := tokenResultToConnection(out.FinalContext, "refresh", ref)
	if err != nil {
		return credstore.AuthConnection{}, err
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = current.RefreshToken
	}
	updated.Extra = current.Extra
	return o.store.Put(ctx, updated)
}

// obtainClientCredentials runs the two-legged client_credentials grant and
// persists the resulting connection, recording its grant_type in Extra so a
// later doRefresh on the same connection re-obtains instead of demanding a
// refresh token that this grant never produces.
func (o *Orchestrator) obtainClientCredentials(ctx context.Context, ref Ref, cfg OAuth2Config) (credstore.AuthConnection, error) {
	flowCtx := flowengine.Context{
		"client_id":     cfg.ClientID,
		"client_secret": cfg.ClientSecret,
		"token_url":     cfg.TokenURL,
		"scopes":        toAnySlice(cfg.Scopes),
	}

	conn, err := o.runClientCredentialsFlow(ctx, ref, flowCtx)
	if err != nil {
		return credstore.AuthConnection{}, err
	}
	conn.Extra = map[string]any{"oauth2_config": map[string]any{
		"client_id": cfg.ClientID, "client_secret": cfg.ClientSecret,
		"token_url": cfg.TokenURL, "scopes": toAnySlice(cfg.Scopes),
		"grant_type": grantClientCredentials,
	}}
	return o.store.Put(ctx, conn)
}

// reobtainClientCredentials re-runs the client_credentials grant from the
// config a prior obtainClientCredentials call stashed in Extra.
func (o *Orchestrator) reobtainClientCredentials(
	ctx context.Context, ref Ref, current credstore.AuthConnection, cfgExtra map[string]any,
) (credstore.AuthConnection, error) {
	flowCtx := flowengine.Context{}
	for k, v := range cfgExtra {
		flowCtx[k] = v
	}

	updated, err := o.runClientCredentialsFlow(ctx, ref, flowCtx)
	if err != nil {
		return credstore.AuthConnection{}, err
	}
	updated.Extra = current.Extra
	return o.store.Put(ctx, updated)
}

func (o *Orchestrator) runClientCredentialsFlow(_ context.Context, ref Ref, flowCtx flowengine.Context) (credstore.AuthConnection, error) {
	out := o.engine.RunUntilPauseOrEnd(buildClientCredentialsFlow(), "", flowCtx, o.handler, o.maxSteps)
	if out.Kind != flowengine.OutcomeFinished {
		return credstore.AuthConnection{}, engineOutcomeToError(out)
	}
	return tokenResultToConnection(out.FinalContext, "obtain", ref)
}

// expiringSoonBuffer is the refresh-ahead window spec.md §4.5 names: a
// token within this long of expiry is refreshed proactively rather than
// handed out and left to fail on first use.
const expiringSoonBuffer = 5 * time.Minute

// GetValidAccessToken implements spec.md §4.5's refresh policy: return the
// cached token unless it is expiring soon (within expiringSoonBuffer of
// ExpiresAt) or already expired, in which case refresh it (single-flighted
// across concurrent callers) before returning.
func (o *Orchestrator) GetValidAccessToken(ctx context.Context, ref Ref) (string, error) {
	conn, found, err := o.store.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	if found && !conn.IsExpiringSoon(nowFunc(), expiringSoonBuffer) {
		return conn.AccessToken, nil
	}

	refreshed, err := o.RefreshConnection(ctx, ref)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// InvalidateAndRefresh is called by the Execution Engine after a request
// comes back 401: it drops any cached copy and forces exactly one refresh
// attempt, never a retry loop (spec.md §8 property #5).
func (o *Orchestrator) InvalidateAndRefresh(ctx context.Context, ref Ref) (string, error) {
	type invalidator interface {
		Invalidate(ref credstore.Ref)
	}
	if inv, ok := o.store.(invalidator); ok {
		inv.Invalidate(ref)
	}
	conn, err := o.RefreshConnection(ctx, ref)
	if err != nil {
		return "", err
	}
	return conn.AccessToken, nil
}

func engineOutcomeToError(out flowengine.Outcome) error {
	if out.Err == nil {
		return apperrors.New(apperrors.KindInternal, "flow engine returned no result and no error")
	}
	logger.Errorf("auth flow failed: kind=%s state=%s cause=%v", out.Err.Kind, out.Err.State, out.Err.Cause)
	return apperrors.Wrap(apperrors.KindAuthError, out.Err, "authentication flow did not complete").
		WithData(map[string]any{"reason": apperrors.SubProviderError, "state": out.Err.State})
}

// tokenResultToConnection pulls the token map left in ctx.states.<stateName>.result
// (per the flow engine's task-result merge rule) into an AuthConnection.
func tokenResultToConnection(ctx flowengine.Context, stateName string, ref Ref) (credstore.AuthConnection, error) {
	statesNode, _ := ctx["states"].(map[string]any)
	stateResult, _ := statesNode[stateName].(map[string]any)
	tok, _ := stateResult["result"].(map[string]any)
	if tok == nil {
		return credstore.AuthConnection{}, apperrors.New(apperrors.KindInternal, "flow finished without a token result")
	}

	conn := credstore.AuthConnection{
		Tenant:   ref.Tenant,
		Provider: ref.Provider,
		UserID:   ref.UserID,
	}
	if v, ok := tok["access_token"].(string); ok {
		conn.AccessToken = v
	}
	if v, ok := tok["refresh_token"].(string); ok {
		conn.RefreshToken = v
	}
	if v, ok := tok["token_type"].(string); ok {
		conn.TokenType = v
	}
	if v, ok := tok["scope"].(string); ok {
		conn.Scope = v
	}
	if v, ok := tok["expires_at"].(time.Time); ok {
		conn.ExpiresAt = &v
	}
	return conn, nil
}

// oauth2ConfigExtra carries forward the fields a later refresh_token flow
// needs, so a connection established by BeginOAuthFromConfig can still be
// refreshed after the process restarts (the pending session itself is
// never persisted).
func oauth2ConfigExtra(ctx flowengine.Context) map[string]any {
	out := map[string]any{}
	for _, k := range []string{"client_id", "client_secret", "auth_url", "token_url", "redirect_url", "scopes"} {
		if v, ok := ctx[k]; ok {
			out[k] = v
		}
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func buildAuthorizeURL(cfg OAuth2Config, state, pkceChallenge string) string {
	u, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return cfg.AuthURL
	}
	q := u.Query()
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("state", state)
	if len(cfg.Scopes) > 0 {
		q.Set("scope", joinScopes(cfg.Scopes))
	}
	if cfg.UsePKCE {
		q.Set("code_challenge", pkceChallenge)
		q.Set("code_challenge_method", "S256")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
