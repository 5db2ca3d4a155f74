package network

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/helper"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
	"github.com/jabolina/relt/pkg/relt"
	"github.com/prometheus/common/log"
)

// Envelope exchanged over the broker. Replies are matched back to
// the waiting exchange by the correlation identifier.
type brokerEnvelope struct {
	Correlation string `json:"correlation"`
	ReplyTo     string `json:"replyto,omitempty"`
	Data        []byte `json:"data"`
}

// An instance of the Transport interface speaking the messaging
// protocol through a reliable broker transport. The client consumes
// replies on its own exchange and publishes requests to the queue
// the service declared.
type AmqpTransport struct {
	// Transport logger.
	log types.Logger

	// Reliable transport.
	relt *relt.Relt

	// Name of this client, used as the reply address.
	name string

	// Exchanges waiting for a correlated reply.
	mutex   sync.Mutex
	waiting map[string]chan []byte

	// The transport context.
	context context.Context

	// The finish function to closing the transport.
	finish context.CancelFunc
}

func NewAmqpTransport(name string, logger types.Logger) (*AmqpTransport, error) {
	conf := relt.DefaultReltConfiguration()
	conf.Name = name
	conf.Exchange = relt.GroupAddress(name)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, &types.TransportError{Message: "connecting messaging broker", Cause: err}
	}
	ctx, done := context.WithCancel(context.Background())
	t := &AmqpTransport{
		log:     logger,
		relt:    r,
		name:    name,
		waiting: make(map[string]chan []byte),
		context: ctx,
		finish:  done,
	}
	helper.InvokerInstance().Spawn(t.poll)
	return t, nil
}

func (t *AmqpTransport) Exchange(ctx context.Context, endpoint Endpoint, payload []byte) ([]byte, error) {
	m := brokerEnvelope{
		Correlation: uuid.New().String(),
		ReplyTo:     t.name,
		Data:        payload,
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Errorf("failed marshalling request %#v. %v", m, err)
		return nil, &types.SerializationError{Cause: err}
	}

	notify := make(chan []byte, 1)
	t.mutex.Lock()
	t.waiting[m.Correlation] = notify
	t.mutex.Unlock()
	defer func() {
		t.mutex.Lock()
		delete(t.waiting, m.Correlation)
		t.mutex.Unlock()
	}()

	send := relt.Send{
		Address: relt.GroupAddress(endpoint.Queue()),
		Data:    data,
	}
	if err := t.relt.Broadcast(send); err != nil {
		t.log.Errorf("failed sending %#v. %v", send, err)
		return nil, &types.TransportError{Message: "publishing to " + endpoint.Queue(), Cause: err}
	}

	select {
	case raw := <-notify:
		return raw, nil
	case <-ctx.Done():
		return nil, &types.TransportError{Message: "no reply from " + endpoint.Queue(), Cause: ctx.Err()}
	case <-t.context.Done():
		return nil, &types.TransportError{Message: "transport closed"}
	}
}

func (t *AmqpTransport) Close() error {
	t.relt.Close()
	t.finish()
	return nil
}

func (t *AmqpTransport) poll() {
	for {
		select {
		case recv := <-t.relt.Consume():
			t.consume(recv)
		case <-t.context.Done():
			return
		}
	}
}

func (t *AmqpTransport) consume(recv relt.Recv) {
	if recv.Error != nil {
		t.log.Errorf("failed consuming message. %v", recv.Error)
		return
	}
	if recv.Data == nil {
		return
	}

	var m brokerEnvelope
	if err := json.Unmarshal(recv.Data, &m); err != nil {
		t.log.Errorf("failed unmarshalling message. %v", err)
		return
	}

	t.mutex.Lock()
	notify, ok := t.waiting[m.Correlation]
	t.mutex.Unlock()
	if !ok {
		t.log.Debugf("uncorrelated reply %s", m.Correlation)
		return
	}
	select {
	case notify <- m.Data:
	default:
	}
}
