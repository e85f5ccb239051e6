// Package storage persists trackers, their measurement records and the
// tracker event log.
//
// Backends:
//   - memory: in-process maps, used by tests and throwaway runs
//   - sqlite: single-file database, the default for a single-node daemon
//   - postgres: shared database for deployments that outlive one host
//
// Record appends and schedule updates are each atomic individually but not
// jointly transactional; a crash between the two may leave a record without
// a schedule advance. The poll executor tolerates that by re-polling
// slightly early, so duplicate records are possible and consumers must
// accept them.
package storage
