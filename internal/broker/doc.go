// Package broker is the manager's network surface. It upgrades client and
// downloader websockets, dispatches their packets into the scheduler,
// lifecycle and packaging components, pulls finished audio from downloaders
// and serves archives plus a small admin API.
//
// Every connection runs a read loop on the HTTP handler goroutine and a
// write pump on its own goroutine. Handlers touch shared state only through
// registry transactions; outbound packets are queued without blocking.
package broker
