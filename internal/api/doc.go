// Package api defines the JSON shapes served by the daemon HTTP API and the
// read/write service the handlers use. Field names are camelCase and
// timestamps are RFC 3339 in UTC.
package api
