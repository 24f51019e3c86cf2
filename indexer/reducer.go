package indexer

import (
	"sync"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/engine"
)

// Reducer serves reduce and rereduce calls over one dedicated context. A
// mutex serializes calls so concurrent pipeline stages can share a single
// Reducer without tripping the context's one-call-at-a-time rule.
type Reducer struct {
	mu  sync.Mutex
	ctx *engine.Context
}

// NewReducer compiles the reduce function sources into a dedicated context.
func NewReducer(sources []string, index viewengine.IndexType) (*Reducer, error) {
	ctx, err := engine.NewContext(sources, engine.ContextConfig{Index: index})
	if err != nil {
		return nil, err
	}
	return &Reducer{ctx: ctx}, nil
}

// Reduce runs every reduce function over one batch of rows and returns the
// reductions in registration order.
func (r *Reducer) Reduce(keys, values [][]byte) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx.Reduce(keys, values)
}

// ReduceOne runs the reduce function at index over one batch of rows.
func (r *Reducer) ReduceOne(index int, keys, values [][]byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx.ReduceOne(index, keys, values)
}

// Rereduce folds previously computed reductions with the function at index.
func (r *Reducer) Rereduce(index int, reductions [][]byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx.Rereduce(index, reductions)
}

// Close disposes the dedicated context.
func (r *Reducer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx.Close()
}
