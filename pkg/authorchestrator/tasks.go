package authorchestrator

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/flowengine"
)

// taskHandler adapts the orchestrator's OAuth2 operations to the flow
// engine's TaskHandler interface. It never touches the credential store
// directly — it only exchanges/refreshes tokens and hands the resulting
// oauth2.Token back into the flow context for the orchestrator to persist.
type taskHandler struct {
	httpClient *http.Client
}

func newTaskHandler(httpClient *http.Client) *taskHandler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &taskHandler{httpClient: httpClient}
}

func (h *taskHandler) Execute(resource string, params map[string]any, ctx flowengine.Context) (any, error) {
	switch resource {
	case "oauth2.await_callback":
		return h.awaitCallback(ctx)
	case "oauth2.exchange_code":
		return h.exchangeCode(ctx)
	case "oauth2.refresh_token":
		return h.refreshToken(ctx)
	case "oauth2.client_credentials":
		return h.clientCredentials(ctx)
	default:
		return nil, apperrors.Newf(apperrors.KindInternal, "unknown task resource %q", resource)
	}
}

// awaitCallback suspends the flow until the browser redirect carrying
// ?code=&state= arrives. The engine treats the returned *PendingError as a
// request to pause; resume re-enters this same state with "callback.code"
// and "callback.state" already populated in context, so it falls through
// to the success path below instead of suspending again.
func (h *taskHandler) awaitCallback(ctx flowengine.Context) (any, error) {
	callback, _ := ctx["callback"].(map[string]any)
	if callback == nil || callback["code"] == nil {
		return nil, &flowengine.PendingError{Metadata: map[string]any{
			"state": ctx["state"],
		}}
	}
	return map[string]any{"code": callback["code"], "state": callback["state"]}, nil
}

func (h *taskHandler) exchangeCode(ctx flowengine.Context) (any, error) {
	cfg, err := oauth2ConfigFromContext(ctx)
	if err != nil {
		return nil, err
	}
	callback, _ := ctx["callback"].(map[string]any)
	code, _ := callback["code"].(string)
	if code == "" {
		return nil, apperrors.New(apperrors.KindAuthError, "missing authorization code").
			WithData(map[string]any{"reason": apperrors.SubProviderError})
	}

	httpCtx := context.WithValue(context.Background(), oauth2.HTTPClient, h.httpClient)
	opts := []oauth2.AuthCodeOption{}
	if verifier, ok := ctx["pkce_verifier"].(string); ok && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := cfg.Exchange(httpCtx, code, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthError, err, "authorization code exchange failed").
			WithData(map[string]any{"reason": apperrors.SubProviderError})
	}
	return tokenToMap(tok), nil
}

func (h *taskHandler) refreshToken(ctx flowengine.Context) (any, error) {
	cfg, err := oauth2ConfigFromContext(ctx)
	if err != nil {
		return nil, err
	}
	refreshToken, _ := ctx["refresh_token"].(string)
	if refreshToken == "" {
		return nil, apperrors.New(apperrors.KindAuthError, "no refresh token available").
			WithData(map[string]any{"reason": apperrors.SubNoRefreshToken})
	}

	httpCtx := context.WithValue(context.Background(), oauth2.HTTPClient, h.httpClient)
	src := cfg.TokenSource(httpCtx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthError, err, "token refresh failed").
			WithData(map[string]any{"reason": apperrors.SubRefreshFailed})
	}
	return tokenToMap(tok), nil
}

func (h *taskHandler) clientCredentials(ctx flowengine.Context) (any, error) {
	tokenURL, _ := ctx["token_url"].(string)
	clientID, _ := ctx["client_id"].(string)
	clientSecret, _ := ctx["client_secret"].(string)
	var scopes []string
	if raw, ok := ctx["scopes"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	}
	ccCfg := &clientcredentials.Config{
		ClientID: clientID, ClientSecret: clientSecret, TokenURL: tokenURL, Scopes: scopes,
	}
	httpCtx := context.WithValue(context.Background(), oauth2.HTTPClient, h.httpClient)
	tok, err := ccCfg.Token(httpCtx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthError, err, "client_credentials grant failed").
			WithData(map[string]any{"reason": apperrors.SubProviderError})
	}
	return tokenToMap(tok), nil
}

func oauth2ConfigFromContext(ctx flowengine.Context) (*oauth2.Config, error) {
	clientID, _ := ctx["client_id"].(string)
	clientSecret, _ := ctx["client_secret"].(string)
	authURL, _ := ctx["auth_url"].(string)
	tokenURL, _ := ctx["token_url"].(string)
	redirectURL, _ := ctx["redirect_url"].(string)
	var scopes []string
	if raw, ok := ctx["scopes"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	}
	if clientID == "" || tokenURL == "" {
		return nil, apperrors.New(apperrors.KindInvalidArguments, "oauth2 config missing client_id or token_url")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}, nil
}

func tokenToMap(tok *oauth2.Token) map[string]any {
	out := map[string]any{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
	}
	if tok.RefreshToken != "" {
		out["refresh_token"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		out["expires_at"] = tok.Expiry
	}
	if scope := tok.Extra("scope"); scope != nil {
		out["scope"] = fmt.Sprintf("%v", scope)
	}
	return out
}
