// Package notifications delivers broker events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events that the
// operator switched off in [notifications] are suppressed before any HTTP
// call is made.
package notifications
