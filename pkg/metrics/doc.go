// Package metrics registers the process-wide Prometheus collectors modules
// update as they run — RPC call counts and latency, tracker state
// transitions, rotator moves, scheduler placements, broker reconnects —
// and provides Handler, a Prometheus HTTP handler for a "/metrics" scrape
// endpoint. No module in this repository mounts that handler.
//
// All metrics are package-level vars registered at init time, matching the
// global-registry-plus-init pattern; callers just increment or observe the
// var that matches their component, they never construct their own
// registry.
package metrics
