package core

import (
	"context"
	"sync"

	"github.com/jabolina/go-interchange/pkg/interchange/concurrent"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Handler consumes an outcome routed through the default
// presentation path, selected by the declaration display method.
type Handler func(outcome types.Outcome)

// Delivers the eventual outcome of a dispatched command back to
// exactly one logical consumer, off the calling routine. Delivery
// is always scheduled onto a single serialized context so that
// consumers never receive concurrent callbacks.
type Router struct {
	// The serialized delivery context.
	scheduler concurrent.Scheduler

	// Router logger.
	log types.Logger

	// Lookup table from display variant to handler, the fallback
	// presentation path when no consumer handle was registered.
	mutex    sync.RWMutex
	handlers map[types.DisplayMethod]Handler

	// Presentation of error texts with no claiming consumer.
	errors Handler
}

func NewRouter(log types.Logger) *Router {
	r := &Router{
		scheduler: concurrent.NewScheduler(),
		log:       log,
		handlers:  make(map[types.DisplayMethod]Handler),
	}
	r.errors = func(outcome types.Outcome) {
		log.Errorf("%s: %s", outcome.Tag, outcome.ErrText())
	}
	return r
}

// Register binds the handler to the display variant on the default
// presentation path.
func (r *Router) Register(method types.DisplayMethod, h Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handlers[method] = h
}

// SetErrorPresenter replaces the presentation of unclaimed error
// and exception outcomes.
func (r *Router) SetErrorPresenter(h Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.errors = h
}

// Deliver schedules the outcome onto the serialized delivery
// context. A consumer handle supplied at dispatch time receives the
// outcome exclusively, any other outcome falls back to the
// registered presentation path.
func (r *Router) Deliver(outcome types.Outcome) {
	r.scheduler.Schedule(func(ctx context.Context) {
		r.dispatch(outcome)
	})
}

// Stop drains the delivery context.
func (r *Router) Stop() {
	r.scheduler.Stop()
}

func (r *Router) dispatch(outcome types.Outcome) {
	if outcome.Consumer != nil {
		outcome.Consumer.HandleOutcome(outcome)
		return
	}

	switch outcome.Tag {
	case types.ResultSuccess:
		r.present(outcome)
	default:
		// Exceptions, errors and unrecognized tags without a
		// claiming consumer surface as user-visible errors.
		r.mutex.RLock()
		errors := r.errors
		r.mutex.RUnlock()
		errors(outcome)
	}
}

func (r *Router) present(outcome types.Outcome) {
	method := types.DisplayGeneric
	if outcome.Reference != nil {
		method = outcome.Reference.Decl.Method()
	}

	r.mutex.RLock()
	h, ok := r.handlers[method]
	if !ok {
		h = r.handlers[types.DisplayGeneric]
	}
	r.mutex.RUnlock()

	if h == nil {
		r.log.Debugf("no handler for display method %d, outcome dropped", method)
		return
	}
	h(outcome)
}
