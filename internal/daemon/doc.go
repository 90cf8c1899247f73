// Package daemon wires the long-running draftdrop process: it holds the
// single-instance lock, prepares the store and registry, starts the
// directory watcher and serves the HTTP API until the context ends.
//
// Startup order matters. Stale processing rows are swept before the dedup
// registry is seeded, so interrupted items are not treated as claimed.
package daemon
