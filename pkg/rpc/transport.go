package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/log"
	"github.com/aaltosatellite/porthouse/pkg/metrics"
)

// DefaultTimeout is the caller timeout used when a call site doesn't
// specify one, matching the original's default of 1.0 s.
const DefaultTimeout = 1 * time.Second

type pendingCall struct {
	replyCh chan reply
}

type reply struct {
	payload map[string]any
	errMsg  string
	isErr   bool
}

// Transport is the caller side of an RPC call: one private reply queue
// reused for every outbound call made by the owning module.
type Transport struct {
	br *broker.Client

	mu         sync.Mutex
	replyQueue string
	pending    map[string]*pendingCall

	log zerolog.Logger
}

// NewTransport binds a Transport to a module's broker client. The reply
// queue is created lazily on the first Call.
func NewTransport(br *broker.Client) *Transport {
	return &Transport{
		br:      br,
		pending: make(map[string]*pendingCall),
		log:     log.WithComponent("rpc"),
	}
}

func (t *Transport) ensureReplyQueue() error {
	t.mu.Lock()
	already := t.replyQueue != ""
	t.mu.Unlock()
	if already {
		return nil
	}

	name, err := t.br.DeclareAndConsume("", nil, t.onReply)
	if err != nil {
		return fmt.Errorf("rpc: creating reply queue: %w", err)
	}

	t.mu.Lock()
	t.replyQueue = name
	t.mu.Unlock()
	return nil
}

func (t *Transport) onReply(d broker.Delivery) {
	t.mu.Lock()
	call, ok := t.pending[d.CorrelationID]
	if ok {
		delete(t.pending, d.CorrelationID)
	}
	t.mu.Unlock()

	if !ok {
		// Late reply: an unknown correlation-id is logged and discarded,
		// never allowed to crash the consumer loop.
		t.log.Warn().Str("correlation_id", d.CorrelationID).Msg("discarding reply with unknown correlation id")
		return
	}

	var body map[string]any
	if err := json.Unmarshal(d.Body, &body); err != nil {
		call.replyCh <- reply{isErr: true, errMsg: fmt.Sprintf("malformed reply: %v", err)}
		return
	}
	if errMsg, ok := body["error"].(string); ok {
		call.replyCh <- reply{isErr: true, errMsg: errMsg}
		return
	}
	call.replyCh <- reply{payload: body}
}

// Call publishes query to exchange/routingKey and waits up to timeout (use
// DefaultTimeout if zero) for a correlated reply.
func (t *Transport) Call(ctx context.Context, exchange, routingKey string, query map[string]any, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RPCRequestDuration, exchange)

	if err := t.ensureReplyQueue(); err != nil {
		return nil, err
	}

	corrID := uuid.NewString()
	call := &pendingCall{replyCh: make(chan reply, 1)}

	t.mu.Lock()
	t.pending[corrID] = call
	replyQueue := t.replyQueue
	t.mu.Unlock()

	// Always remove the pending entry on exit, win, lose, or time out.
	defer func() {
		t.mu.Lock()
		delete(t.pending, corrID)
		t.mu.Unlock()
	}()

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("rpc: encoding query: %w", err)
	}

	headers := map[string]any{
		"content-type":   "text/plain",
		"correlation_id": corrID,
		"reply_to":       replyQueue,
	}
	if err := t.br.PublishWithHeaders(exchange, routingKey, body, headers); err != nil {
		return nil, fmt.Errorf("rpc: publishing request: %w", err)
	}

	select {
	case r := <-call.replyCh:
		if r.isErr {
			return nil, &RemoteError{Message: r.errMsg}
		}
		return r.payload, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
