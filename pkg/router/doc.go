// Package router implements the packet router module (spec 4.J): a graph
// of named endpoints (broker queues/exchanges, ZeroMQ pub/sub sockets, UDP
// and TCP sockets) connected by a route table, with a pluggable
// decode/encode formatter per endpoint and a small control RPC surface,
// grounded on
// _examples/original_source/mcs/packets/{packet_router.py,router_endpoints.go}.
package router
