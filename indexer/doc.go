// Package indexer runs view map and reduce functions over document
// streams using a pool of engine contexts.
//
// # Pipeline
//
// An Indexer compiles one set of map sources into a context per worker
// and pulls documents from a channel (Run) or a slice (MapAll). Each
// document produces one Result carrying the per-function map outcomes,
// the script's log lines and the elapsed wall time. Per-function script
// failures live inside Result.Results; Result.Err is reserved for
// whole-call failures such as invalid input or termination.
//
// # Timeouts and cancellation
//
// Config.DocTimeout arms a watchdog per document that terminates the
// worker's context when it fires. Cancelling the run's context terminates
// whatever documents are in flight. A terminated context is poisoned, so
// the worker closes it and compiles a fresh one before the next document;
// the view_engine_terminations_total counter tracks rebuilds.
//
// # Reduce
//
// Reducer wraps one context compiled from reduce sources and serializes
// calls with a mutex, so a single Reducer can serve concurrent pipeline
// stages.
//
// # Metrics
//
// The package registers Prometheus collectors under the view_engine_
// prefix at init time: document counts by status, map durations, emitted
// row and byte totals, per-function failure counts and the active worker
// gauge.
package indexer
