// Package module implements the base runtime every porthouse module
// embeds. A module type does not register queues/binds/RPCs as
// declaration-time side effects; instead it implements Describe() and
// returns the full list of registrations, which Runtime.Start consumes
// once at startup.
//
//	Runtime.Start
//	  |-- broker.Connect
//	  |-- for each QueueReg: DeclareAndConsume, binding exchange/routing-key
//	  |-- for each RPCReg:   DeclareAndConsume wrapped in rpc.ServeRequest
//	  |-- go heartbeatLoop()            (every 10s, "<prefix>.heartbeat")
//
// Runtime owns the module's broker.Client and rpc.Transport so a module
// implementation only has to describe its bindings and handle deliveries;
// reconnect, heartbeat, and the RPC envelope are the runtime's job.
package module
