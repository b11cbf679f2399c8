/*
Package types defines the value types shared across porthouse packages:
the broker/module wiring types, the RPC envelope, and the domain model
used by the scheduler, tracker, rotator, and packet router.

# Broker and module wiring

ExchangeDeclaration, ModuleDescriptor, and ParamValue describe a launch
spec's declared exchanges and module list before a launcher resolves and
starts them.

# RPC envelope

RPCRequest and RPCResponse are the JSON bodies exchanged over an RPC
call's reply queue: a plain payload map, or {error: "..."} when a
handler fails.

# Scheduling domain model

Task and Process represent, respectively, one concrete scheduled
contact and the recurring template it was generated from. TaskStatus is
the task lifecycle: NOT_SCHEDULED, SCHEDULED, ONGOING, EXECUTED,
CANCELLED. TimeWindow and DateRange express a process' daily
time-of-day and calendar-date eligibility constraints.

Pass is a read-only AOS/max/LOS prediction; Valid reports whether a
pass clears its process' peak-elevation floor with a forward-running
duration.

# Packet routing

EndpointKind, EndpointDirection, and EndpointSpec describe one entry in
the packet router's endpoint catalog: broker queues, ZeroMQ sockets, or
raw UDP/TCP sockets, each tagged with the routing metadata a formatter
chain merges onto outgoing frames.
*/
package types
