// Package workflow runs image files through the draft pipeline.
//
// An Engine executes the fixed stage sequence for one file: create the item,
// analyze the image, upload it to the catalog, create the draft listing and
// archive the source file. Every transition is persisted on the item and
// recorded in the action log. Runs are bounded by a weighted semaphore and,
// once started, are detached from caller cancellation so an item is never
// abandoned half way through a stage.
package workflow
