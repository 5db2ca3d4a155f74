package network

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// The transport interface providing the communication primitives
// used by the engine. A transport must eventually produce a reply
// or an error for every accepted exchange, there is no engine level
// timeout on top of it.
type Transport interface {
	io.Closer

	// Exchange submits the payload to the endpoint and waits for
	// the service reply.
	Exchange(ctx context.Context, endpoint Endpoint, payload []byte) ([]byte, error)
}

// A resolved service access point.
type Endpoint struct {
	// One of http, https, amqp, amqps.
	Scheme string

	// The full endpoint URL, scheme included.
	URL string

	// Messaging broker credentials, when the service declared any.
	MqbAuth   string
	MqbSecret string

	host string
}

// Messaging reports whether the endpoint speaks the messaging
// protocol rather than HTTP.
func (e Endpoint) Messaging() bool {
	return e.Scheme == "amqp" || e.Scheme == "amqps"
}

// Queue names the broker address the service consumes from.
func (e Endpoint) Queue() string {
	if e.MqbAuth != "" {
		return e.MqbAuth
	}
	return e.host
}

// ResolveEndpoint derives the access point from a service
// configuration. A URL without an explicit scheme is treated as a
// messaging endpoint when broker credentials are present, as HTTP
// otherwise.
func ResolveEndpoint(cfg *types.ServiceConfig) (Endpoint, error) {
	if cfg == nil || cfg.URL == "" {
		return Endpoint{}, &types.ConfigurationError{Reason: "service endpoint url is absent"}
	}
	raw := cfg.URL
	if !strings.Contains(raw, "://") {
		if cfg.MqbAuth != "" {
			raw = "amqp://" + raw
		} else {
			raw = "http://" + raw
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, &types.ConfigurationError{Reason: "malformed endpoint url " + cfg.URL}
	}
	switch u.Scheme {
	case "http", "https", "amqp", "amqps":
	default:
		return Endpoint{}, &types.ConfigurationError{Reason: "unsupported endpoint scheme " + u.Scheme}
	}
	return Endpoint{
		Scheme:    u.Scheme,
		URL:       raw,
		MqbAuth:   cfg.MqbAuth,
		MqbSecret: cfg.MqbSecret,
		host:      u.Host,
	}, nil
}
