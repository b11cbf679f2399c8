package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/log"
	"github.com/aaltosatellite/porthouse/pkg/metrics"
)

// HandlerFunc is a user RPC method: it receives the request name (routing
// key with the module's prefix stripped) and the decoded JSON body, and
// returns a payload to serialize as the response, or an error.
type HandlerFunc func(requestName string, body map[string]any) (map[string]any, error)

// Publisher is the broker capability ServeRequest needs to send a reply.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
	PublishWithHeaders(exchange, routingKey string, body []byte, headers map[string]any) error
}

// ServeRequest parses the request body as JSON, dispatches to fn with
// the prefix stripped, serializes the result, and translates errors
// into {error: "..."} reply frames by error kind. It never panics the
// caller's consumer loop: all failures become a reply frame.
func ServeRequest(pub Publisher, d broker.Delivery, prefix string, fn HandlerFunc) {
	l := log.WithComponent("rpc")

	var body map[string]any
	if len(d.Body) > 0 {
		if err := json.Unmarshal(d.Body, &body); err != nil {
			replyError(pub, d, fmt.Sprintf("Unhandled exception %v", err))
			return
		}
	}

	requestName := strings.TrimPrefix(d.RoutingKey, prefix+".")

	defer func() {
		if p := recover(); p != nil {
			l.Error().Interface("panic", p).Str("request", requestName).Msg("rpc handler panicked")
			metrics.RPCRequestsTotal.WithLabelValues(requestName, "error").Inc()
			replyError(pub, d, fmt.Sprintf("Unhandled exception %v", p))
		}
	}()

	result, err := fn(requestName, body)
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			l.Warn().Str("request", requestName).Str("err", rpcErr.Message).Msg("rpc handler rejected request")
			metrics.RPCRequestsTotal.WithLabelValues(requestName, "rejected").Inc()
			replyError(pub, d, "RPC Error: "+rpcErr.Message)
			return
		}
		l.Error().Err(err).Str("request", requestName).Msg("rpc handler crashed")
		metrics.RPCRequestsTotal.WithLabelValues(requestName, "error").Inc()
		replyError(pub, d, fmt.Sprintf("Unhandled exception %v", err))
		return
	}
	metrics.RPCRequestsTotal.WithLabelValues(requestName, "ok").Inc()

	if result == nil {
		result = map[string]any{}
	}
	payload, err := json.Marshal(result)
	if err != nil {
		replyError(pub, d, fmt.Sprintf("Unhandled exception %v", err))
		return
	}
	_ = pub.PublishWithHeaders("", d.ReplyTo, payload, map[string]any{"correlation_id": d.CorrelationID})
}

func replyError(pub Publisher, d broker.Delivery, message string) {
	payload, _ := json.Marshal(map[string]any{"error": message})
	_ = pub.PublishWithHeaders("", d.ReplyTo, payload, map[string]any{"correlation_id": d.CorrelationID})
}
