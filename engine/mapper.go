package engine

import (
	"github.com/dop251/goja"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/errors"
)

// MapDoc runs every map function against one JSON document and its metadata.
// It returns one result per function, in registration order; a function
// throwing or exceeding the emission budget fails only its own slot, with a
// fresh budget for each sibling. The whole call fails on malformed metadata,
// on an eagerly loaded malformed document, and when the context is
// terminated mid-call.
func (c *Context) MapDoc(doc, meta []byte) ([]viewengine.MapResult, error) {
	if len(doc) == 0 {
		return nil, errors.InvalidInput(errors.PhaseMap, "empty document")
	}
	if len(meta) == 0 {
		return nil, errors.InvalidInput(errors.PhaseMap, "empty metadata")
	}
	if err := c.enterCall(errors.PhaseMap); err != nil {
		return nil, err
	}
	defer c.exitCall()
	c.inMap = true

	metaVal, err := c.parseJSON(meta)
	if err != nil {
		return nil, errors.Parse(errors.PhaseMap, "metadata", err)
	}

	var docVal goja.Value
	if c.lazyDoc {
		docVal = c.vm.NewDynamicObject(&lazyDoc{ctx: c, raw: doc})
	} else {
		docVal, err = c.parseJSON(doc)
		if err != nil {
			return nil, errors.Parse(errors.PhaseMap, "document", err)
		}
		c.docUsed = true
	}

	results := make([]viewengine.MapResult, 0, len(c.funcs))
	for i, fn := range c.funcs {
		c.rows = c.rows[:0]
		c.emitBytes = 0
		c.overflowed = false

		_, callErr := fn(goja.Undefined(), docVal, metaVal)

		switch {
		case c.terminated.Load():
			// The terminate interrupt may have landed in this slot or be
			// still pending; either way the whole call stops here and the
			// context stays poisoned until Close.
			return nil, errors.Terminated(errors.PhaseMap)

		case c.overflowed:
			// The budget interrupt is consumed whether or not the function
			// observed it before returning, so it cannot leak into the next
			// slot. A terminate signal racing with the clear would be consumed
			// with it, so the latch is rechecked after.
			c.vm.ClearInterrupt()
			if c.terminated.Load() {
				return nil, errors.Terminated(errors.PhaseMap)
			}
			results = append(results, viewengine.Failure(errors.EmitOverflow(i, c.emitBytes)))

		case callErr != nil:
			results = append(results, viewengine.Failure(c.scriptError(errors.PhaseMap, i, callErr)))

		default:
			rows := make([]viewengine.KVPair, len(c.rows))
			copy(rows, c.rows)
			results = append(results, viewengine.KVs(rows))
		}
	}
	return results, nil
}
