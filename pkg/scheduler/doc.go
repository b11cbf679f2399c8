// Package scheduler wraps pkg/schedule's contact-scheduling model into a
// module: an RPC surface for operator/tooling access (get_schedule,
// get_processes, add_process, add_task, remove_task, get_pass), a
// priority-ranked auto-placement loop that turns each enabled Process's
// predicted passes into Tasks, and a tick loop that starts tracking as a
// task's preaos window opens, grounded on
// original_source/gs/scheduler/scheduler.py's check_schedule/start_pass.
package scheduler
