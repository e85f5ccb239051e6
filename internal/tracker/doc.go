// Package tracker is the core control loop: the Scheduler decides when
// each tracker is due, the Executor performs one poll against the stats
// provider, and the Service is the administrative facade.
//
// Concurrency model: one dispatch loop is the single authority over the
// in-flight set; polls run on a bounded worker pool; a tracker has at most
// one poll in flight, so its records are strictly ordered. Stopping is
// sticky and idempotent; deleting wins over in-flight writes.
package tracker
