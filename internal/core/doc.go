// Package core provides the business logic of the review pipeline.
//
// This package drives form submissions from ingest to a materialized
// specification. It is independent of any UI or transport layer and is used
// by the HTTP server, the CLI and tests without modification.
//
// # Stages
//
// A submission moves through a fixed sequence of stages. Each stage may only
// run for submissions whose status is the single predecessor of the stage's
// target status (see package status):
//
//	ingest                  -> fetched
//	clean_title             fetched -> title_cleaned
//	match_product           title_cleaned -> shopify_mapped
//	generate_specification  shopify_mapped -> specification_generated
//
// # Runs
//
// [Service.RunStage] selects the eligible submissions for one stage and
// processes them strictly one at a time, each inside its own transaction:
//
//  1. Slow work that needs no database (catalog search) runs first
//  2. The transaction takes a per-submission advisory lock and re-reads the
//     row FOR UPDATE, so a concurrent run that got there first causes a
//     state violation instead of a lost update
//  3. The stage writes its data and the status advances
//  4. Any failure rolls the submission back and is recorded as a [Failure]
//     and in the event log; the batch continues
//
// Each run owns its lookup cache. [Service.RunPipeline] shares one cache
// across its stages and discards it when the run ends.
//
// # Error Handling
//
// Every failure carries a [Kind] (not_found, state_violation, validation,
// upstream, infra) and, where known, the offending field, value and up to
// five suggestions. Technical errors are mapped to user-facing messages with
// [MapError]:
//
//   - NF001-NF003: Missing submission, reviewer or catalog match
//   - ST001-ST002: Illegal transitions
//   - VAL001-VAL006: Missing, malformed or unknown values
//   - UPS001-UPS003: Forms and catalog API failures
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - RUN001-RUN002: Run limits, cancellation and timeouts
package core
