// Package notifications delivers run outcomes to the operator.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Delivery errors
// are returned to the caller, which logs them; they never affect a run.
package notifications
