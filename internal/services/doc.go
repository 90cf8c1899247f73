// Package services defines shared utilities consumed by the pipeline engine
// and its remote collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp item IDs, stage names, and correlation
//     identifiers for logging.
//   - The error taxonomy (analysis, upload, draft, file system,
//     configuration) plus the Wrap helper that keeps the marker reachable via
//     errors.Is while carrying an operator-facing message.
//
// Collaborator packages live underneath (analyzer, catalog) and return errors
// built with Wrap so the engine can branch on the failure kind explicitly.
package services
