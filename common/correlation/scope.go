package correlation

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Scope.
type State int32

const (
	StateUninitialized State = iota
	StateBound
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateTornDown:
		return "torn_down"
	default:
		return "uninitialized"
	}
}

// Observer is told when a scope is bound and when it is torn down.
type Observer interface {
	Bound(RequestContext)
	TornDown(RequestContext)
}

// Scope is the binding of one RequestContext to one request. It is safe for concurrent use.
type Scope struct {
	rc        RequestContext
	ctx       context.Context
	cancel    context.CancelFunc
	state     atomic.Int32
	endOnce   sync.Once
	observers []Observer
}

// Context returns the request context carrying rc and the enriched logger.
// It is cancelled by End.
func (s *Scope) Context() context.Context { return s.ctx }

// RequestContext returns the bound context, whatever the scope state.
func (s *Scope) RequestContext() RequestContext { return s.rc }

func (s *Scope) State() State { return State(s.state.Load()) }

// Propagate writes X-Trace-Id and X-User onto h.
func (s *Scope) Propagate(h http.Header) {
	setHeaders(h, s.rc)
}

// End tears the scope down. Only the first call has an effect.
func (s *Scope) End() {
	s.endOnce.Do(func() {
		s.state.Store(int32(StateTornDown))
		s.cancel()
		for _, o := range s.observers {
			o.TornDown(s.rc)
		}
	})
}

// EndOnDone ends the scope as soon as ctx is done. The returned stop function detaches
// the hook, as context.AfterFunc does.
func (s *Scope) EndOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, s.End)
}
