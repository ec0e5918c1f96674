package execengine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/execengine"
)

func TestSendRetriesOn503ThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := execengine.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, RetryOn: []string{"5xx"}, Jitter: execengine.JitterNone, BackoffRate: 2}
	buildReq := func(ctx context.Context, token string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}

	result := execengine.Send(context.Background(), srv.Client(), policy, buildReq, "", nil)
	require.NoError(t, result.Err)
	require.NotNil(t, result.Response)
	assert.Equal(t, http.StatusOK, result.Response.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendExhaustsRetriesAndReturnsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	policy := execengine.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, RetryOn: []string{"5xx"}, Jitter: execengine.JitterNone, BackoffRate: 2}
	buildReq := func(ctx context.Context, token string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}

	result := execengine.Send(context.Background(), srv.Client(), policy, buildReq, "", nil)
	require.Error(t, result.Err)
	require.NotNil(t, result.Response)
	assert.Equal(t, http.StatusServiceUnavailable, result.Response.StatusCode)
}

func TestSendDoesNotRetryNonRetryableStatus(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	policy := execengine.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, RetryOn: []string{"5xx"}, Jitter: execengine.JitterNone, BackoffRate: 2}
	buildReq := func(ctx context.Context, token string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}

	result := execengine.Send(context.Background(), srv.Client(), policy, buildReq, "", nil)
	require.NoError(t, result.Err)
	assert.Equal(t, http.StatusNotFound, result.Response.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSend401WithOAuthRefreshesOnceThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := execengine.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, RetryOn: []string{"5xx"}, Jitter: execengine.JitterNone, BackoffRate: 2}

	var refreshed int32
	onUnauthorized := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&refreshed, 1)
		return "fresh", nil
	}
	buildReq := func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, err
	}

	result := execengine.Send(context.Background(), srv.Client(), policy, buildReq, "stale", onUnauthorized)
	require.NoError(t, result.Err)
	assert.Equal(t, http.StatusOK, result.Response.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshed))
}

func TestSendRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := execengine.RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, RetryOn: []string{"5xx"}, Jitter: execengine.JitterNone, BackoffRate: 2}
	buildReq := func(ctx context.Context, token string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}

	result := execengine.Send(ctx, srv.Client(), policy, buildReq, "", nil)
	require.Error(t, result.Err)
}
