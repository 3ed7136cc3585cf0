// Package ledger keeps a history of job and session events in SQLite.
//
// The broker never reads the ledger to make scheduling decisions; live state
// stays in the registry. Events are appended asynchronously through a Recorder
// so a slow disk cannot stall packet handling, and read back by the status API
// and the history command. Rows older than ledger.retention_days are pruned on
// start.
//
// The schema is versioned in schema.go. Bump schemaVersion when schema.sql
// changes; older databases are rejected with ErrSchemaMismatch and must be
// deleted.
package ledger
