package core

import (
	"context"
	"sync"
	"time"

	"github.com/jabolina/go-interchange/pkg/interchange/helper"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Drives the periodic cycles of the engine, the service poll and the
// seen-list flush. Each cycle fires first after its initial delay
// and then at its period, independent of any caller lifecycle, until
// Stop is called.
type Poller struct {
	// Synchronization for start/stop transitions.
	mutex *sync.Mutex

	// Cancellation of all running cycles.
	context context.Context
	finish  context.CancelFunc

	// Poller logger.
	log types.Logger
}

func NewPoller(parent context.Context, log types.Logger) *Poller {
	ctx, cancel := context.WithCancel(parent)
	return &Poller{
		mutex:   &sync.Mutex{},
		context: ctx,
		finish:  cancel,
		log:     log,
	}
}

// Start launches a named periodic cycle. The job runs first after
// the initial delay, then every period, always on a single routine
// so a slow run delays the next instead of overlapping it.
func (p *Poller) Start(name string, initialDelay, period time.Duration, job func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.context.Err() != nil {
		return
	}
	ctx := p.context
	helper.InvokerInstance().Spawn(func() {
		p.cycle(ctx, name, initialDelay, period, job)
	})
}

func (p *Poller) cycle(ctx context.Context, name string, initialDelay, period time.Duration, job func()) {
	first := time.NewTimer(initialDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		p.log.Debugf("running periodic cycle %s", name)
		job()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels every running cycle. Jobs already mid-run finish
// their current iteration.
func (p *Poller) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.finish()
}
