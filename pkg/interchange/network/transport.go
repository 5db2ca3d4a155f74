package network

import (
	"context"
	"sync"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// MultiTransport routes each exchange to the transport matching the
// endpoint scheme. The messaging transport connects to the broker
// lazily, on the first messaging endpoint seen, so HTTP-only setups
// never touch the broker.
type MultiTransport struct {
	name string
	log  types.Logger

	http Transport

	mutex sync.Mutex
	amqp  Transport
}

func NewTransport(name string, log types.Logger) *MultiTransport {
	return &MultiTransport{
		name: name,
		log:  log,
		http: NewHttpTransport(log),
	}
}

func (t *MultiTransport) Exchange(ctx context.Context, endpoint Endpoint, payload []byte) ([]byte, error) {
	if !endpoint.Messaging() {
		return t.http.Exchange(ctx, endpoint, payload)
	}
	messaging, err := t.messaging()
	if err != nil {
		return nil, err
	}
	return messaging.Exchange(ctx, endpoint, payload)
}

func (t *MultiTransport) messaging() (Transport, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.amqp == nil {
		amqp, err := NewAmqpTransport(t.name, t.log)
		if err != nil {
			return nil, err
		}
		t.amqp = amqp
	}
	return t.amqp, nil
}

func (t *MultiTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.amqp != nil {
		if err := t.amqp.Close(); err != nil {
			return err
		}
		t.amqp = nil
	}
	return t.http.Close()
}
