package authorchestrator

import (
	"sync"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/flowengine"
)

// pendingSession is a paused flow execution, parked waiting for a browser
// callback. It is keyed by the OAuth "state" CSRF nonce: when a callback
// arrives, the orchestrator looks up the session whose context produced
// that state and rejects anything else (spec.md §4.5's state-matching
// rule — a callback with an unrecognized state is NOT_FOUND, never
// silently accepted).
type pendingSession struct {
	Ref       Ref
	Flow      *flowengine.Flow
	NextState string
	Context   flowengine.Context
	CreatedAt time.Time
}

// pendingStore is an in-memory, process-local registry of paused auth
// sessions. It intentionally does not persist across restarts: a
// half-completed browser redirect that outlives the process is expected to
// be retried by the caller (spec.md §4.5 Non-goals).
type pendingStore struct {
	mu      sync.Mutex
	byState map[string]*pendingSession
	maxAge  time.Duration
}

func newPendingStore(maxAge time.Duration) *pendingStore {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &pendingStore{byState: make(map[string]*pendingSession), maxAge: maxAge}
}

func (p *pendingStore) put(state string, s *pendingSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byState[state] = s
}

// take removes and returns the session registered under state, or an error
// if none matches (including ones that expired and were reaped).
func (p *pendingStore) take(state string) (*pendingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byState[state]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "no pending auth session for this state").
			WithData(map[string]any{"state": state})
	}
	delete(p.byState, state)
	if nowFunc().Sub(s.CreatedAt) > p.maxAge {
		return nil, apperrors.New(apperrors.KindTimeout, "pending auth session expired").
			WithData(map[string]any{"state": state})
	}
	return s, nil
}

// reap drops pending sessions older than maxAge. Callers may run this on a
// timer; it is never invoked implicitly by put/take.
func (p *pendingStore) reap() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := nowFunc()
	for state, s := range p.byState {
		if now.Sub(s.CreatedAt) > p.maxAge {
			delete(p.byState, state)
		}
	}
}
