package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaltosatellite/porthouse/pkg/broker"
)

type recordingPublisher struct {
	exchange, routingKey string
	body                 []byte
	headers              map[string]any
}

func (r *recordingPublisher) Publish(exchange, routingKey string, body []byte) error {
	return r.PublishWithHeaders(exchange, routingKey, body, nil)
}

func (r *recordingPublisher) PublishWithHeaders(exchange, routingKey string, body []byte, headers map[string]any) error {
	r.exchange, r.routingKey, r.body, r.headers = exchange, routingKey, body, headers
	return nil
}

func TestServeRequest_Success(t *testing.T) {
	pub := &recordingPublisher{}
	d := broker.Delivery{
		RoutingKey:    "rotator.uhf.rpc.status",
		CorrelationID: "corr-1",
		ReplyTo:       "reply-queue",
		Body:          []byte(`{}`),
	}

	ServeRequest(pub, d, "rotator.uhf", func(requestName string, body map[string]any) (map[string]any, error) {
		require.Equal(t, "rpc.status", requestName)
		return map[string]any{"az": 10.0}, nil
	})

	require.Equal(t, "reply-queue", pub.routingKey)
	require.Equal(t, "corr-1", pub.headers["correlation_id"])

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.body, &got))
	require.Equal(t, 10.0, got["az"])
}

func TestServeRequest_RPCError(t *testing.T) {
	pub := &recordingPublisher{}
	d := broker.Delivery{RoutingKey: "rotator.uhf.rpc.rotate", ReplyTo: "r", CorrelationID: "c"}

	ServeRequest(pub, d, "rotator.uhf", func(requestName string, body map[string]any) (map[string]any, error) {
		return nil, NewRPCError("azimuth out of range")
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.body, &got))
	require.Equal(t, "RPC Error: azimuth out of range", got["error"])
}

func TestServeRequest_UnhandledException(t *testing.T) {
	pub := &recordingPublisher{}
	d := broker.Delivery{RoutingKey: "rotator.uhf.rpc.rotate", ReplyTo: "r", CorrelationID: "c"}

	ServeRequest(pub, d, "rotator.uhf", func(requestName string, body map[string]any) (map[string]any, error) {
		return nil, errBoom
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.body, &got))
	require.Contains(t, got["error"], "Unhandled exception")
}

var errBoom = &testErr{"boom"}

type testErr struct{ s string }

func (e *testErr) Error() string { return e.s }
