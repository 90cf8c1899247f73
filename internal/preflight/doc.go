// Package preflight provides readiness checks for the directories and
// remote credentials draftdrop depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs each result. Failures are
//     reported, never fatal: a missing credential only fails the affected
//     stage of each run.
//   - The CLI "draftdrop preflight" command prints the same results and can
//     additionally probe the catalog API with CheckCatalogAuth.
package preflight
