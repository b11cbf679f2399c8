// Package schedule implements the contact-schedule data model: tasks,
// processes, overlap resolution, splitting, and renumbering. Priority-ranked
// placement is done by pkg/scheduler on top of it.
//
// A Schedule keeps tasks indexed three ways: by name (the only way to
// address one task), by start time, and by end time (both order-preserving).
// Overlap queries scan the start-ordered list; the end-ordered list is kept
// in step with it but is not consulted by queries.
// Deleted tasks move to a separate archive index keyed by start time; they
// are still queryable but never participate in conflict checks again.
package schedule
