// Package viewengine provides a sandboxed JavaScript map/reduce engine for
// building view indexes over JSON documents.
//
// View functions are plain JavaScript source compiled into an isolated
// execution context. Documents stream through the map functions, which emit
// key/value rows; reduce functions fold emitted rows into aggregates and
// re-reduce previously computed aggregates. All values crossing the boundary
// are JSON-encoded byte buffers.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	viewengine/          Root package with the core data model (KVPair, MapResult)
//	├── engine/          Embedded JavaScript engine: process lifecycle, contexts,
//	│                    map/reduce calls, cooperative termination
//	├── indexer/         Host-side pipeline: worker pool, per-document watchdog,
//	│                    serialized reduce access, prometheus metrics
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Map one document and reduce its rows:
//
//	if err := engine.Init(os.Args[0]); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Deinit()
//
//	ctx, err := engine.NewContext([]string{
//	    `function(doc, meta) { emit(meta.id, doc.value); }`,
//	}, engine.ContextConfig{MaxEmitBytes: viewengine.DefaultMaxEmitBytes})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	results, err := ctx.MapDoc([]byte(`{"value": 7}`), []byte(`{"id": "doc1"}`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rows, _ := results[0].KVs()
//	fmt.Printf("%s -> %s\n", rows[0].Key, rows[0].Value) // "doc1" -> 7
//
// # Failure Model
//
// Mapping fails per function: each map function produces its own MapResult,
// and one function throwing or exceeding its emission budget never disturbs
// its siblings. Reduction is all-or-nothing: the first failing reduce
// function fails the whole call.
//
// # Thread Safety
//
// Engine process state and context creation are safe for concurrent use.
// A Context is NOT thread-safe for calls: MapDoc, Reduce, ReduceOne and
// Rereduce must be serialized by the caller. Exactly two operations may
// overlap an in-flight call: Terminate (from any goroutine) and Close.
// A terminated context stays unusable until closed; hosts rebuild contexts
// after termination.
package viewengine
