// Package broker wraps an AMQP 0-9-1 connection with the handful of
// operations every porthouse module needs: declaring exchanges and queues,
// binding with routing patterns, publishing, and consuming.
//
// A client owns exactly one connection and one channel. Publish calls are
// serialized through an internal mutex so a reconnect in progress never
// interleaves a half-written frame with a caller's publish, matching the
// "runtime serializes publish calls to avoid framing corruption during
// reconnect" resource policy.
//
//	client          AMQP broker
//	  |-- Publish -->|
//	  |<-- ack -------|
//	  |-- Consume --->| (queue.declare, queue.bind, basic.consume)
//	  |<-- deliveries-|
//
// On a channel-closed error during Publish, the client redials, redeclares
// every consumer registered through DeclareAndConsume (server-named queues
// get a fresh name), rebinds, and resumes before surfacing any error to the
// caller — see reconnectAndRestore in client.go.
package broker
