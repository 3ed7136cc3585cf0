// Package packaging bundles a finished session's output directory into one
// uncompressed zip archive and walks the session through the packaging
// states (none, working, done).
//
// Requests come from the client (package-request) or automatically after the
// last job of a session with autoPackageOnFinish finishes. Archiving runs in
// the background; the session's connection is closed once the archive is
// ready or archiving failed.
package packaging
