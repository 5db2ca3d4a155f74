package core

import (
	"context"
	"sync"
	"time"

	"github.com/jabolina/go-interchange/pkg/interchange/network"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Logger discarding everything, tests assert on behavior instead of
// log lines.
type noopLogger struct{}

func (noopLogger) Info(...interface{})           {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warn(...interface{})           {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Error(...interface{})          {}
func (noopLogger) Errorf(string, ...interface{}) {}
func (noopLogger) Debug(...interface{})          {}
func (noopLogger) Debugf(string, ...interface{}) {}

// Transport answering from a programmable reply function, counting
// every exchange and optionally holding requests open until released.
type fakeTransport struct {
	mutex sync.Mutex
	calls int
	reply func(payload []byte) ([]byte, error)
	hold  chan struct{}
}

func newFakeTransport(reply func(payload []byte) ([]byte, error)) *fakeTransport {
	return &fakeTransport{reply: reply}
}

func (t *fakeTransport) holdRequests() chan struct{} {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.hold = make(chan struct{})
	return t.hold
}

func (t *fakeTransport) Exchange(ctx context.Context, endpoint network.Endpoint, payload []byte) ([]byte, error) {
	t.mutex.Lock()
	t.calls++
	hold := t.hold
	t.mutex.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, &types.TransportError{Message: "cancelled", Cause: ctx.Err()}
		}
	}
	return t.reply(payload)
}

func (t *fakeTransport) Close() error {
	return nil
}

func (t *fakeTransport) exchanged() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.calls
}

// Consumer pushing every delivered outcome onto a channel.
type channelConsumer struct {
	outcomes chan types.Outcome
}

func newChannelConsumer() *channelConsumer {
	return &channelConsumer{outcomes: make(chan types.Outcome, 8)}
}

func (c *channelConsumer) HandleOutcome(outcome types.Outcome) {
	c.outcomes <- outcome
}

func (c *channelConsumer) next(timeout time.Duration) (types.Outcome, bool) {
	select {
	case outcome := <-c.outcomes:
		return outcome, true
	case <-time.After(timeout):
		return types.Outcome{}, false
	}
}
