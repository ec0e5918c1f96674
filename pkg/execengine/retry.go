package execengine

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/logger"
)

// Sender abstracts *http.Client for tests.
type Sender interface {
	Do(req *http.Request) (*http.Response, error)
}

// AttemptOutcome is one attempt's result, surfaced to the caller for
// building the execution record's trace annotations.
type AttemptOutcome struct {
	Attempt    int
	StatusCode int
	Wait       time.Duration
	Err        error
}

// RetryResult is the outcome of a full send/retry loop.
type RetryResult struct {
	Response *http.Response
	Attempts []AttemptOutcome
	Err      error
}

// unauthorizedHook is invoked exactly once, only on the first attempt's
// 401 response when auth is OAuth, to invalidate the cached token and
// obtain a fresh one before retrying immediately (spec.md §4.9.3 step 3).
// It returns the refreshed access token.
type unauthorizedHook func(ctx context.Context) (string, error)

// Send runs buildReq/send under policy's retry rules. buildReq is called
// once per attempt so the request body can be rebuilt (http.Request bodies
// are single-use) and so a refreshed access token can be threaded in after
// a 401.
func Send(ctx context.Context, client Sender, policy RetryPolicy, buildReq func(ctx context.Context, accessToken string) (*http.Request, error), accessToken string, onUnauthorized unauthorizedHook) RetryResult {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.MaxInterval = policy.MaxDelay
	bo.Multiplier = policy.BackoffRate
	bo.RandomizationFactor = 0 // deterministic base; jitter applied separately below
	if bo.Multiplier <= 0 {
		bo.Multiplier = 2.0
	}

	start := time.Now()
	var result RetryResult
	unauthorizedUsed := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if policy.TotalTimeout > 0 && time.Since(start) >= policy.TotalTimeout {
			result.Err = apperrors.New(apperrors.KindTimeout, "execution exceeded total retry timeout")
			return result
		}

		req, err := buildReq(ctx, accessToken)
		if err != nil {
			result.Err = err
			return result
		}

		resp, sendErr := client.Do(req)
		if sendErr != nil {
			outcome := AttemptOutcome{Attempt: attempt, Err: sendErr}
			if attempt >= maxAttempts || ctx.Err() != nil {
				result.Attempts = append(result.Attempts, outcome)
				result.Err = apperrors.Wrap(apperrors.KindNetworkError, sendErr, "request failed")
				return result
			}
			wait := computeWait(bo, attempt, policy.Jitter)
			outcome.Wait = wait
			result.Attempts = append(result.Attempts, outcome)
			if !sleep(ctx, wait) {
				result.Err = apperrors.New(apperrors.KindTimeout, "execution cancelled during retry backoff")
				return result
			}
			continue
		}

		outcome := AttemptOutcome{Attempt: attempt, StatusCode: resp.StatusCode}

		if resp.StatusCode == http.StatusUnauthorized && onUnauthorized != nil && !unauthorizedUsed && attempt == 1 {
			unauthorizedUsed = true
			resp.Body.Close()
			fresh, refreshErr := onUnauthorized(ctx)
			result.Attempts = append(result.Attempts, outcome)
			if refreshErr != nil {
				result.Err = apperrors.Wrap(apperrors.KindAuthError, refreshErr, "token refresh after 401 failed")
				return result
			}
			accessToken = fresh
			maxAttempts++ // the immediate retry does not count against exponential waits
			continue
		}

		if !isRetryable(resp.StatusCode, policy.RetryOn) {
			result.Attempts = append(result.Attempts, outcome)
			result.Response = resp
			return result
		}

		if attempt >= maxAttempts {
			result.Attempts = append(result.Attempts, outcome)
			result.Response = resp
			result.Err = apperrors.Newf(apperrors.KindNetworkError, "exhausted retries, last status %d", resp.StatusCode)
			return result
		}

		var wait time.Duration
		if ra, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok && policy.RespectRetryAfter {
			wait = ra
		} else {
			wait = computeWait(bo, attempt, policy.Jitter)
		}
		outcome.Wait = wait
		resp.Body.Close()
		result.Attempts = append(result.Attempts, outcome)

		logger.Debugf("execengine: retrying after status=%d attempt=%d wait=%s", outcome.StatusCode, attempt, wait)

		if !sleep(ctx, wait) {
			result.Err = apperrors.New(apperrors.KindTimeout, "execution cancelled during retry backoff")
			return result
		}
	}

	result.Err = apperrors.New(apperrors.KindNetworkError, "retry loop exited without a terminal outcome")
	return result
}

// computeWait asks the exponential backoff for this attempt's base delay
// (bo tracks its own advancing state across calls), then applies the
// configured jitter strategy on top (spec.md §4.9.3).
func computeWait(bo *backoff.ExponentialBackOff, attempt int, jitter JitterStrategy) time.Duration {
	return applyJitter(bo.NextBackOff(), jitter)
}

func applyJitter(base time.Duration, strategy JitterStrategy) time.Duration {
	switch strategy {
	case JitterNone, "":
		return base
	case JitterFull:
		return randDuration(base)
	case JitterEqual:
		return base/2 + randDuration(base/2)
	default:
		return base
	}
}

func randDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return max / 2
	}
	return time.Duration(n.Int64())
}

func isRetryable(status int, retryOn []string) bool {
	for _, spec := range retryOn {
		switch {
		case spec == "5xx" && status >= 500 && status < 600:
			return true
		case spec == "4xx" && status >= 400 && status < 500:
			return true
		default:
			if code, err := strconv.Atoi(spec); err == nil && code == status {
				return true
			}
		}
	}
	return false
}

func parseRetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(header); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
