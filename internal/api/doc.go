// Package api defines the wire-format types served by the manager's admin
// endpoints and the client the CLI uses to read them.
//
// # Key Types
//
// Status: point-in-time snapshot of sessions, downloaders and the shared
// queue.
//
// HistoryResponse: newest-first ledger events.
//
// # Converters
//
// FromSession, FromWorker and FromJob translate registry entities into DTOs
// so handlers never leak internal pointers into JSON.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// The admin endpoints require a bearer token; Client sends it on every call.
package api
