package network

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// An instance of the Transport interface speaking plain HTTP(S).
// The command envelope travels as the POST body, the service reply
// as the response body.
type HttpTransport struct {
	// Transport logger.
	log types.Logger

	// The underlying client, shared across exchanges.
	client *http.Client
}

func NewHttpTransport(log types.Logger) *HttpTransport {
	return &HttpTransport{
		log:    log,
		client: &http.Client{},
	}
}

func (t *HttpTransport) Exchange(ctx context.Context, endpoint Endpoint, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, &types.TransportError{Message: "building request for " + endpoint.URL, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return nil, &types.TransportError{Message: "service unreachable at " + endpoint.URL, Cause: err}
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, &types.TransportError{Message: "reading service reply", Cause: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		t.log.Errorf("service at %s replied %s", endpoint.URL, res.Status)
		return nil, &types.TransportError{Message: fmt.Sprintf("service replied %s", res.Status)}
	}
	return body, nil
}

func (t *HttpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
