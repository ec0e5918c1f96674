package toolproto

import (
	"context"
	"path"
	"time"

	"golang.org/x/time/rate"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// Governance holds the process-wide policy gating tool calls (spec.md
// §4.10, §5): an allow/deny glob filter, a concurrency semaphore, and an
// optional requests-per-second limiter. It is constructed once at startup
// and shared by reference across every in-flight call, never threaded
// through thread-locals.
type Governance struct {
	allowPatterns []string
	denyPatterns  []string
	timeout       time.Duration

	sem     chan struct{}
	limiter *rate.Limiter
}

// GovernanceConfig is the caller-supplied policy.
type GovernanceConfig struct {
	AllowPatterns []string
	DenyPatterns  []string
	MaxConcurrency int
	// RatePerSecond bounds the sustained call rate; 0 disables the limiter.
	RatePerSecond float64
	Timeout       time.Duration
}

// NewGovernance builds a Governance from cfg, applying spec.md §4.10's
// defaults where the caller leaves a field zero.
func NewGovernance(cfg GovernanceConfig) *Governance {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	g := &Governance{
		allowPatterns: cfg.AllowPatterns,
		denyPatterns:  cfg.DenyPatterns,
		timeout:       timeout,
		sem:           make(chan struct{}, maxConcurrency),
	}
	if cfg.RatePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), maxConcurrency)
	}
	return g
}

// Allowed reports whether toolName passes the allow/deny glob policy. An
// empty allow-list means "allow everything not explicitly denied"; deny
// always wins over allow.
func (g *Governance) Allowed(toolName string) bool {
	for _, pat := range g.denyPatterns {
		if matched, _ := path.Match(pat, toolName); matched {
			return false
		}
	}
	if len(g.allowPatterns) == 0 {
		return true
	}
	for _, pat := range g.allowPatterns {
		if matched, _ := path.Match(pat, toolName); matched {
			return true
		}
	}
	return false
}

// Acquire blocks until a concurrency slot (and, if configured, a rate-limit
// token) is available, or ctx is cancelled. The returned release func must
// be called exactly once. The returned context carries the per-call
// timeout the transport layer enforces around the send.
func (g *Governance) Acquire(ctx context.Context) (releaseCtx context.Context, release func(), err error) {
	if g.limiter != nil {
		if werr := g.limiter.Wait(ctx); werr != nil {
			return nil, nil, apperrors.Wrap(apperrors.KindPermissionDenied, werr, "rate limit wait cancelled")
		}
	}
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, apperrors.Wrap(apperrors.KindTimeout, ctx.Err(), "governance semaphore wait cancelled")
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	return callCtx, func() {
		cancel()
		<-g.sem
	}, nil
}
