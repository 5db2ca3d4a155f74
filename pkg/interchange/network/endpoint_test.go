package network

import (
	"errors"
	"testing"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
	"go.uber.org/goleak"
)

func TestResolveEndpoint_SchemeRules(t *testing.T) {
	defer goleak.VerifyNone(t)
	cases := []struct {
		name      string
		cfg       types.ServiceConfig
		scheme    string
		messaging bool
	}{
		{"explicit http", types.ServiceConfig{URL: "http://service.example:8080/route"}, "http", false},
		{"explicit https", types.ServiceConfig{URL: "https://service.example"}, "https", false},
		{"explicit amqp", types.ServiceConfig{URL: "amqp://broker.example"}, "amqp", true},
		{"bare with broker auth", types.ServiceConfig{URL: "broker.example", MqbAuth: "svc.queue"}, "amqp", true},
		{"bare without broker auth", types.ServiceConfig{URL: "service.example:8080"}, "http", false},
	}
	for _, c := range cases {
		endpoint, err := ResolveEndpoint(&c.cfg)
		if err != nil {
			t.Errorf("%s: unexpected error. %v", c.name, err)
			continue
		}
		if endpoint.Scheme != c.scheme {
			t.Errorf("%s: got scheme %s, want %s", c.name, endpoint.Scheme, c.scheme)
		}
		if endpoint.Messaging() != c.messaging {
			t.Errorf("%s: got messaging %v, want %v", c.name, endpoint.Messaging(), c.messaging)
		}
	}
}

func TestResolveEndpoint_Rejections(t *testing.T) {
	defer goleak.VerifyNone(t)
	rejected := []*types.ServiceConfig{
		nil,
		{},
		{URL: "ftp://service.example"},
	}
	for _, cfg := range rejected {
		_, err := ResolveEndpoint(cfg)
		var confErr *types.ConfigurationError
		if !errors.As(err, &confErr) {
			t.Errorf("%+v: got %v, want a configuration error", cfg, err)
		}
	}
}

func TestEndpoint_Queue(t *testing.T) {
	defer goleak.VerifyNone(t)
	withAuth, err := ResolveEndpoint(&types.ServiceConfig{URL: "broker.example", MqbAuth: "svc.queue"})
	if err != nil {
		t.Fatalf("unexpected error. %v", err)
	}
	if withAuth.Queue() != "svc.queue" {
		t.Fatalf("got queue %s, want svc.queue", withAuth.Queue())
	}

	bare, err := ResolveEndpoint(&types.ServiceConfig{URL: "amqp://broker.example"})
	if err != nil {
		t.Fatalf("unexpected error. %v", err)
	}
	if bare.Queue() != "broker.example" {
		t.Fatalf("got queue %s, want broker.example", bare.Queue())
	}
}
