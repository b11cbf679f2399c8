package module

import (
	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
)

// Bind is one exchange/routing-key binding attached to a queue
// registration. Prefixed bindings expand routing_key to
// "<prefix>.<routing_key>" at
// registration time; prefix stacking (launcher prefix + module prefix) is
// resolved before Describe is even called, so this package only ever sees
// the module's final, already-stacked prefix.
type Bind struct {
	Exchange   string
	RoutingKey string
	Prefixed   bool
}

// QueueReg is one `queue()` registration: an exclusive, auto-delete queue
// (anonymous when Name == "") bound to zero or more exchanges and served
// by Handler.
type QueueReg struct {
	Name    string
	Binds   []Bind
	Handler func(broker.Delivery)
}

// RPCReg is one `rpc()` registration: Verb becomes routing key
// "<prefix>.rpc.<verb>" (or "rpc.<verb>" with no prefix) on Exchange.
type RPCReg struct {
	Exchange string
	Verb     string
	Handler  rpc.HandlerFunc
}

// Description is the full set of registrations a module contributes,
// collected by Describe() rather than as declaration-time side effects.
type Description struct {
	Queues []QueueReg
	RPCs   []RPCReg
}

// Module is implemented by every concrete porthouse module.
type Module interface {
	Describe() Description
}
