package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrSuperseded marks an operation that lost to a newer request of the
// same class. It is never surfaced to users; callers treat it as a no-op.
var ErrSuperseded = errors.New("request superseded")

var (
	issuedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finder_requests_issued_total",
		Help: "The total number of issued orchestrated requests",
	}, []string{"class"})
	supersededRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finder_requests_superseded_total",
		Help: "The total number of requests cancelled by a newer request of the same class",
	}, []string{"class"})
	failedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finder_requests_failed_total",
		Help: "The total number of orchestrated requests that failed without being superseded",
	}, []string{"class"})
)

// Orchestrator guarantees at most one winning response per request class.
// Issuing a request cancels the pending one of the same class, and a
// cancelled request's resolution is discarded even if the transport
// ignored the abort. Responses therefore apply in issuance order, never
// arrival order.
type Orchestrator struct {
	mu      sync.Mutex
	gen     map[string]uint64
	pending map[string]*pendingRequest
}

type pendingRequest struct {
	cancel context.CancelFunc
	gen    uint64
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		gen:     make(map[string]uint64),
		pending: make(map[string]*pendingRequest),
	}
}

// Handle identifies one issued request. Its context is cancelled when a
// newer request of the same class is issued.
type Handle struct {
	o     *Orchestrator
	ctx   context.Context
	class string
	gen   uint64
}

func (h *Handle) Context() context.Context { return h.ctx }

// Begin registers a request under class, cancelling any pending request
// of the same class first.
func (o *Orchestrator) Begin(ctx context.Context, class string) *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.pending[class]; ok {
		prev.cancel()
		supersededRequests.WithLabelValues(class).Inc()
	}
	o.gen[class]++
	gen := o.gen[class]
	reqCtx, cancel := context.WithCancel(ctx)
	o.pending[class] = &pendingRequest{cancel: cancel, gen: gen}
	issuedRequests.WithLabelValues(class).Inc()
	return &Handle{o: o, ctx: reqCtx, class: class, gen: gen}
}

// Alive reports whether the handle still belongs to the most recently
// issued request of its class.
func (h *Handle) Alive() bool {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	p, ok := h.o.pending[h.class]
	return ok && p.gen == h.gen
}

// Finish completes the request. The apply function runs under the
// orchestrator lock if and only if the handle is still the active one
// for its class, so a stale response can never mutate shared state. It
// reports whether apply ran.
func (h *Handle) Finish(apply func()) bool {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	p, ok := h.o.pending[h.class]
	if !ok || p.gen != h.gen {
		return false
	}
	delete(h.o.pending, h.class)
	p.cancel()
	if apply != nil {
		apply()
	}
	return true
}

// Cancel aborts the pending request of a class, if any, without issuing
// a replacement.
func (o *Orchestrator) Cancel(class string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pending[class]; ok {
		p.cancel()
		delete(o.pending, class)
	}
}

// Issue runs op under supersession control and blocks until it settles.
// A superseded run returns ErrSuperseded regardless of what op returned,
// so callers never see an error from a request that no longer matters.
func Issue[T any](o *Orchestrator, ctx context.Context, class string, op func(context.Context) (T, error)) (T, error) {
	h := o.Begin(ctx, class)
	result, err := op(h.ctx)
	if !h.Finish(nil) {
		var zero T
		return zero, ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			var zero T
			return zero, ErrSuperseded
		}
		failedRequests.WithLabelValues(class).Inc()
		var zero T
		return zero, err
	}
	return result, nil
}
