package indexer

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/engine"
	"github.com/wippyai/view-engine/errors"
)

// Config controls a pipeline run.
type Config struct {
	// Workers is the number of parallel mapping workers. Each worker owns
	// its own engine context. Zero or negative means runtime.NumCPU().
	Workers int

	// DocTimeout bounds one document's wall time across all map functions.
	// A document that exceeds it is terminated and reported with a
	// terminated error. Zero disables the watchdog.
	DocTimeout time.Duration

	// MaxEmitBytes caps the JSON bytes one map function may emit per
	// document. Zero applies viewengine.DefaultMaxEmitBytes; negative
	// disables the cap.
	MaxEmitBytes int

	// Index selects the view flavor compiled into every worker context.
	Index viewengine.IndexType
}

// Document is one unit of work for the map phase.
type Document struct {
	// ID names the document in results, logs and synthesized metadata.
	ID string

	// Body is the document's JSON.
	Body []byte

	// Meta is the document's JSON metadata. When nil, {"id": ID} is
	// synthesized.
	Meta []byte
}

// Result reports the outcome of mapping one document.
type Result struct {
	DocID string

	// Results holds one entry per map function, in registration order.
	// Empty when Err is set.
	Results []viewengine.MapResult

	// Logs holds the lines the script logged while mapping this document.
	Logs []string

	// Err is set when the whole call failed (bad input, termination).
	// Per-function failures land in Results instead.
	Err error

	Elapsed time.Duration
}

type docMeta struct {
	ID string `json:"id"`
}

type job struct {
	pos int
	doc Document
}

// Indexer pumps documents through a pool of map contexts compiled from a
// fixed set of sources.
//
// An Indexer is stateless between runs and safe for concurrent use; each
// run builds its own contexts.
type Indexer struct {
	sources []string
	cfg     Config
}

// New returns an indexer that compiles sources into every worker context.
// Compilation happens per run, so source errors surface from Run or MapAll.
func New(sources []string, cfg Config) *Indexer {
	return &Indexer{sources: sources, cfg: cfg}
}

// Run maps documents from docs until the channel closes or ctx is
// cancelled, delivering one Result per document on results in completion
// order. It returns the first worker error, ctx.Err() on cancellation, or
// nil once docs is drained.
//
// Run does not close results.
func (ix *Indexer) Run(ctx context.Context, docs <-chan Document, results chan<- Result) error {
	jobs := make(chan job)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case d, ok := <-docs:
				if !ok {
					return nil
				}
				select {
				case jobs <- job{pos: -1, doc: d}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	deliver := func(dctx context.Context, _ int, r Result) error {
		select {
		case results <- r:
			return nil
		case <-dctx.Done():
			return dctx.Err()
		}
	}

	for w := 0; w < ix.workers(); w++ {
		g.Go(func() error {
			return ix.worker(gctx, jobs, deliver)
		})
	}
	return g.Wait()
}

// MapAll maps a fixed slice of documents and returns results in input
// order. It stops at the first worker error or on ctx cancellation.
func (ix *Indexer) MapAll(ctx context.Context, docs []Document) ([]Result, error) {
	out := make([]Result, len(docs))
	jobs := make(chan job)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range docs {
			select {
			case jobs <- job{pos: i, doc: docs[i]}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Workers write disjoint slots, so no lock is needed.
	deliver := func(_ context.Context, pos int, r Result) error {
		out[pos] = r
		return nil
	}

	for w := 0; w < ix.workers(); w++ {
		g.Go(func() error {
			return ix.worker(gctx, jobs, deliver)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// worker drains jobs on a dedicated context, rebuilding it whenever a
// termination poisons it.
func (ix *Indexer) worker(ctx context.Context, jobs <-chan job, deliver func(context.Context, int, Result) error) error {
	ectx, err := ix.newContext()
	if err != nil {
		return err
	}
	defer func() {
		if ectx != nil {
			if cerr := ectx.Close(); cerr != nil {
				Logger().Warn("close worker context", zap.Error(cerr))
			}
		}
	}()

	activeWorkers.Inc()
	defer activeWorkers.Dec()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			res, poisoned := ix.mapOne(ctx, ectx, j.doc)
			if poisoned {
				terminationsTotal.Inc()
				if cerr := ectx.Close(); cerr != nil {
					Logger().Warn("close terminated context", zap.Error(cerr))
				}
				ectx = nil
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fresh, nerr := ix.newContext()
				if nerr != nil {
					return nerr
				}
				ectx = fresh
			}
			if err := deliver(ctx, j.pos, res); err != nil {
				return err
			}
		}
	}
}

// mapOne maps a single document, arming the per-document watchdog and the
// host cancellation hook. The second return value reports whether the
// context was terminated and must be rebuilt; a late watchdog can poison
// the context even after a successful call.
func (ix *Indexer) mapOne(ctx context.Context, ectx *engine.Context, doc Document) (Result, bool) {
	meta := doc.Meta
	if len(meta) == 0 {
		buf, err := json.Marshal(docMeta{ID: doc.ID})
		if err != nil {
			return Result{DocID: doc.ID, Err: errors.Internal(errors.PhaseMap, "encode metadata", err)}, false
		}
		meta = buf
	}

	stopCancel := context.AfterFunc(ctx, ectx.Terminate)
	defer stopCancel()

	var watchdog *time.Timer
	if ix.cfg.DocTimeout > 0 {
		watchdog = time.AfterFunc(ix.cfg.DocTimeout, ectx.Terminate)
	}

	start := time.Now()
	mapped, err := ectx.MapDoc(doc.Body, meta)
	elapsed := time.Since(start)
	if watchdog != nil {
		watchdog.Stop()
	}

	mapDuration.Observe(elapsed.Seconds())

	res := Result{DocID: doc.ID, Results: mapped, Err: err, Elapsed: elapsed}
	// A call refused at entry never resets the capture, so the lines still
	// belong to the previous document.
	if !ectx.TaskStart().Before(start) {
		if logs := ectx.Logs(); len(logs) > 0 {
			res.Logs = append([]string(nil), logs...)
		}
	}

	switch {
	case err == nil:
		docsMappedTotal.WithLabelValues(statusOK).Inc()
		ix.recordEmissions(doc.ID, mapped)
	case errors.KindOf(err) == errors.KindTerminated:
		docsMappedTotal.WithLabelValues(statusTerminated).Inc()
		Logger().Warn("document mapping terminated",
			zap.String("doc_id", doc.ID),
			zap.Duration("elapsed", elapsed))
	default:
		docsMappedTotal.WithLabelValues(statusError).Inc()
		Logger().Warn("document mapping failed",
			zap.String("doc_id", doc.ID),
			zap.Error(err))
	}
	return res, ectx.Terminated()
}

func (ix *Indexer) recordEmissions(docID string, mapped []viewengine.MapResult) {
	var rows, bytes int
	for _, r := range mapped {
		kvs, ok := r.KVs()
		if !ok {
			mapFailuresTotal.WithLabelValues(string(errors.KindOf(r.Err()))).Inc()
			continue
		}
		rows += len(kvs)
		for _, kv := range kvs {
			bytes += len(kv.Key) + len(kv.Value)
		}
	}
	rowsEmittedTotal.Add(float64(rows))
	bytesEmittedTotal.Add(float64(bytes))
	Logger().Debug("mapped document",
		zap.String("doc_id", docID),
		zap.Int("rows", rows),
		zap.Int("bytes", bytes))
}

func (ix *Indexer) newContext() (*engine.Context, error) {
	return engine.NewContext(ix.sources, engine.ContextConfig{
		Index:        ix.cfg.Index,
		MaxEmitBytes: ix.emitBudget(),
	})
}

func (ix *Indexer) emitBudget() int {
	switch {
	case ix.cfg.MaxEmitBytes < 0:
		return 0
	case ix.cfg.MaxEmitBytes == 0:
		return viewengine.DefaultMaxEmitBytes
	default:
		return ix.cfg.MaxEmitBytes
	}
}

func (ix *Indexer) workers() int {
	if ix.cfg.Workers > 0 {
		return ix.cfg.Workers
	}
	return runtime.NumCPU()
}
