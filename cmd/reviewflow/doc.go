// Command reviewflow runs the review pipeline from the command line.
//
// Batch commands (pipeline, stage) hold an exclusive lock file so two
// invocations never process the same backlog at once. Output is a table on a
// terminal and JSON otherwise; --output overrides the choice.
package main
