// Command draftdrop is the CLI for the draftdrop image-to-draft pipeline.
//
// "draftdrop run" starts the daemon in the foreground. The other commands
// talk to a running daemon over its HTTP API, except config and preflight
// which work from the local configuration alone.
package main
