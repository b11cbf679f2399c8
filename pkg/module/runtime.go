package module

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/log"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
)

// HeartbeatInterval is fixed at 10s per spec 4.B point 3.
const HeartbeatInterval = 10 * time.Second

// Runtime hosts one module instance's broker connection, RPC transport,
// registration wiring, and heartbeat loop.
type Runtime struct {
	Broker *broker.Client
	RPC    *rpc.Transport

	name     string
	prefix   string
	exchange string // home exchange for heartbeat/event publishes
	log      zerolog.Logger

	doneCh chan struct{}
}

// NewRuntime wires a runtime for a module identified by name, with routing
// prefix (already stacked by the launcher) and its home exchange.
func NewRuntime(br *broker.Client, name, prefix, exchange string) *Runtime {
	l := log.WithModule(name)
	l = log.WithPrefix(l, prefix)
	return &Runtime{
		Broker:   br,
		RPC:      rpc.NewTransport(br),
		name:     name,
		prefix:   prefix,
		exchange: exchange,
		log:      l,
		doneCh:   make(chan struct{}),
	}
}

// Prefixed expands key to "<prefix>.<key>", or returns key unchanged if the
// runtime has no prefix, matching BaseModule.prefixed().
func (r *Runtime) Prefixed(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + "." + key
}

// Log returns the module's child logger.
func (r *Runtime) Log() zerolog.Logger { return r.log }

// Start connects the broker, registers every queue/RPC binding from mod's
// Describe(), and launches the heartbeat loop. It returns once setup is
// complete; the module's own event loop (consumer goroutines plus whatever
// timers the module runs) continues until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context, mod Module) error {
	if err := r.Broker.Connect(ctx); err != nil {
		return fmt.Errorf("module %s: connecting: %w", r.name, err)
	}

	r.log = log.WithBrokerSink(r.log, r.name, r.Broker)

	desc := mod.Describe()

	for _, q := range desc.Queues {
		binds := make([]broker.Bind, 0, len(q.Binds))
		for _, b := range q.Binds {
			key := b.RoutingKey
			if b.Prefixed {
				key = r.Prefixed(key)
			}
			binds = append(binds, broker.Bind{Exchange: b.Exchange, RoutingKey: key})
		}
		if _, err := r.Broker.DeclareAndConsume(q.Name, binds, q.Handler); err != nil {
			return fmt.Errorf("module %s: registering queue %q: %w", r.name, q.Name, err)
		}
	}

	for _, reg := range desc.RPCs {
		reg := reg
		routingKey := r.Prefixed("rpc." + reg.Verb)
		handler := func(d broker.Delivery) {
			rpc.ServeRequest(r.Broker, d, r.prefix, reg.Handler)
		}
		if _, err := r.Broker.DeclareAndConsume("", []broker.Bind{{Exchange: reg.Exchange, RoutingKey: routingKey}}, handler); err != nil {
			return fmt.Errorf("module %s: registering rpc %q: %w", r.name, reg.Verb, err)
		}
	}

	go r.heartbeatLoop(ctx)

	r.log.Info().Msg("module started")
	return nil
}

// heartbeatLoop publishes {alive: true} on "<prefix>.heartbeat" on the
// module's home exchange every HeartbeatInterval until ctx is cancelled,
// satisfying the "at least one heartbeat in any 15s window" invariant
// (spec §8 #8) with margin to spare.
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	body, _ := json.Marshal(map[string]any{"alive": true})
	routingKey := r.Prefixed("heartbeat")

	for {
		select {
		case <-ctx.Done():
			close(r.doneCh)
			return
		case <-ticker.C:
			if err := r.Broker.Publish(r.exchange, routingKey, body); err != nil {
				r.log.Warn().Err(err).Msg("heartbeat publish failed")
			}
		}
	}
}

// Done is closed once the heartbeat loop (and thus the runtime) has
// observed context cancellation, letting callers join cleanly.
func (r *Runtime) Done() <-chan struct{} { return r.doneCh }
