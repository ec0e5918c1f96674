package authorchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/authorchestrator"
	"github.com/aionixone/openact-sub001/pkg/credstore"
)

func newTokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access-token",
			"refresh_token": "new-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBeginAndCompleteOAuthRoundTrip(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := newTokenServer(t, &calls)

	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store, authorchestrator.WithHTTPClient(srv.Client()))

	ref := credstore.Ref{Tenant: "acme", Provider: "github", UserID: "u1"}
	cfg := authorchestrator.OAuth2Config{
		Provider: "github", ClientID: "cid", ClientSecret: "csecret",
		AuthURL: srv.URL + "/authorize", TokenURL: srv.URL, RedirectURL: "https://app.example/callback",
		Scopes: []string{"repo"}, UsePKCE: true,
	}

	pending, err := orch.BeginOAuthFromConfig(context.Background(), ref, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, pending.State)

	u, err := url.Parse(pending.AuthorizeURL)
	require.NoError(t, err)
	assert.Equal(t, pending.State, u.Query().Get("state"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))

	conn, err := orch.CompleteOAuthWithCallback(context.Background(), pending.State, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", conn.AccessToken)
	assert.Equal(t, "new-refresh-token", conn.RefreshToken)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	stored, found, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new-access-token", stored.AccessToken)
}

func TestCompleteOAuthRejectsUnknownState(t *testing.T) {
	t.Parallel()
	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store)

	_, err := orch.CompleteOAuthWithCallback(context.Background(), "never-issued", "code")
	require.Error(t, err)
}

func TestRefreshConnectionSingleFlightsConcurrentCallers(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := newTokenServer(t, &calls)

	store := credstore.NewMemoryStore()
	ref := credstore.Ref{Tenant: "acme", Provider: "github", UserID: "u1"}
	_, err := store.Put(context.Background(), credstore.AuthConnection{
		Tenant: ref.Tenant, Provider: ref.Provider, UserID: ref.UserID,
		AccessToken: "old", RefreshToken: "old-refresh", TokenType: "Bearer",
		Extra: map[string]any{"oauth2_config": map[string]any{
			"client_id": "cid", "client_secret": "csecret", "token_url": srv.URL,
		}},
	})
	require.NoError(t, err)

	orch := authorchestrator.New(store, authorchestrator.WithHTTPClient(srv.Client()))

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := orch.RefreshConnection(context.Background(), ref)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "singleflight should coalesce concurrent refreshes into one upstream call")
}

func TestGetValidAccessTokenReturnsCachedWhenFresh(t *testing.T) {
	t.Parallel()
	store := credstore.NewMemoryStore()
	ref := credstore.Ref{Tenant: "acme", Provider: "github", UserID: "u1"}
	future := time.Now().Add(time.Hour)
	_, err := store.Put(context.Background(), credstore.AuthConnection{
		Tenant: ref.Tenant, Provider: ref.Provider, UserID: ref.UserID,
		AccessToken: "still-good", ExpiresAt: &future,
	})
	require.NoError(t, err)

	orch := authorchestrator.New(store)
	token, err := orch.GetValidAccessToken(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "still-good", token)
}

func TestGetValidAccessTokenRefreshesWhenExpired(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := newTokenServer(t, &calls)

	store := credstore.NewMemoryStore()
	ref := credstore.Ref{Tenant: "acme", Provider: "github", UserID: "u1"}
	past := time.Now().Add(-time.Minute)
	_, err := store.Put(context.Background(), credstore.AuthConnection{
		Tenant: ref.Tenant, Provider: ref.Provider, UserID: ref.UserID,
		AccessToken: "expired", RefreshToken: "old-refresh", ExpiresAt: &past,
		Extra: map[string]any{"oauth2_config": map[string]any{
			"client_id": "cid", "client_secret": "csecret", "token_url": srv.URL,
		}},
	})
	require.NoError(t, err)

	orch := authorchestrator.New(store, authorchestrator.WithHTTPClient(srv.Client()))
	token, err := orch.GetValidAccessToken(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCreatePATConnectionBypassesFlowEngine(t *testing.T) {
	t.Parallel()
	store := credstore.NewMemoryStore()
	orch := authorchestrator.New(store)
	ref := credstore.Ref{Tenant: "acme", Provider: "raw-http", UserID: "svc"}

	conn, err := orch.CreatePATConnection(context.Background(), ref, "tok_abc", map[string]any{"note": "ci bot"})
	require.NoError(t, err)
	assert.Equal(t, "tok_abc", conn.AccessToken)
	assert.Equal(t, "Bearer", conn.TokenType)

	_, err = orch.CreatePATConnection(context.Background(), ref, "", nil)
	require.Error(t, err)
}
