// Package queue persists pipeline items, the action log, and runtime settings
// in SQLite.
//
// The Store manages the database connection, schema initialization, item
// create/read/update, the append-only action log, the live auto-process flag,
// and the optional stale-processing sweep run at daemon start. The store
// permits several rows with the same filename; uniqueness among live items is
// enforced in memory by the dedup registry, not here.
//
// Schema changes bump the version in schema.go; operators move the old
// database aside to adopt the new schema.
package queue
