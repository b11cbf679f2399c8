// Package rpc implements request/reply over a broker.Client using
// correlation ids and a private per-caller reply queue.
//
// Caller: Transport.Call lazily creates one exclusive, auto-delete reply
// queue the first time it's used and reuses it for every subsequent call
// from that module. Each call gets a fresh correlation id; a pending-call
// table maps id -> channel, and the reply consumer resolves it by id,
// logging and discarding unknown ids (a late reply) instead of crashing.
//
// Callee: ServeRequest wraps a user HandlerFunc so it receives (requestName,
// body) with the module's routing prefix already stripped, and returns
// either a payload or an error that gets serialized by kind: an
// *RPCError produces {error: "RPC Error: <message>"}, any other error
// produces {error: "Unhandled exception <text>"}.
package rpc
