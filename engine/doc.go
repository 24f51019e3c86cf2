// Package engine embeds a JavaScript runtime for executing view functions.
//
// This package wraps goja to provide the view-engine execution model:
// process-wide lifecycle, isolated per-caller contexts holding compiled
// function slots, document mapping with per-function failure isolation,
// all-or-nothing reduction, and cooperative termination.
//
// # Architecture
//
// The package has two levels:
//
//	process state - Init/Deinit/SetOptimizeDocLoad, shared by all contexts
//	Context       - one isolated runtime with compiled function slots
//
// # Call Flow
//
//  1. Init() once per process, before any context exists
//  2. NewContext() compiles every source, all-or-nothing
//  3. MapDoc() / Reduce() / ReduceOne() / Rereduce() issue script calls
//  4. Terminate() interrupts a runaway call from any goroutine
//  5. Close() disposes the context; Deinit() once all contexts are closed
//
// # Value Boundary
//
// Every document, key, value and reduction crossing the boundary is a
// JSON-encoded byte buffer. Decoding and encoding happen inside the guest
// runtime through its own JSON.parse and JSON.stringify, so script-visible
// semantics (undefined handling, key ordering, number formatting) are the
// runtime's own, never a Go approximation.
//
// # Script Environment
//
// Map functions see emit(key, value) and log(line). Map/reduce contexts
// additionally see sum(values), dateToArray(date) and decodeBase64(b64);
// spatial contexts do not. Documents are exposed lazily by default: the
// first property access parses the body and records that the document was
// used (see SetOptimizeDocLoad).
//
// # Termination Model
//
// Terminate sets a latch and interrupts the runtime. The running call
// observes the interrupt at the next safe point and fails with a terminated
// error; the context then refuses every further call until Close. Hosts that
// terminate (for example on a watchdog timeout) close the poisoned context
// and build a fresh one. The emission budget uses the same interrupt channel
// with its own sentinel, consumed inside MapDoc so only the offending
// function slot fails.
//
// # Thread Safety
//
// Process-level functions and NewContext are safe for concurrent use.
// Context is NOT thread-safe for calls; only Terminate and Close may overlap
// an in-flight call.
package engine
