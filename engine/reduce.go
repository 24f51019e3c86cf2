package engine

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/wippyai/view-engine/errors"
)

// Reduce runs every reduce function over one batch of emitted rows. Keys and
// values are parallel arrays of JSON buffers. Unlike mapping, reduction is
// all-or-nothing: the first failing function fails the whole call. Results
// line up with registration order.
func (c *Context) Reduce(keys, values [][]byte) ([][]byte, error) {
	if err := c.enterCall(errors.PhaseReduce); err != nil {
		return nil, err
	}
	defer c.exitCall()

	if len(keys) != len(values) {
		return nil, errors.Arity(errors.PhaseReduce, len(keys), len(values))
	}

	keysArr, valuesArr, err := c.reduceArgs(errors.PhaseReduce, keys, values)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(c.funcs))
	for i, fn := range c.funcs {
		buf, err := c.callReduce(errors.PhaseReduce, i, fn, keysArr, valuesArr, false)
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}

// ReduceOne runs the single reduce function at the given zero-based slot
// over one batch of emitted rows.
func (c *Context) ReduceOne(index int, keys, values [][]byte) ([]byte, error) {
	if err := c.enterCall(errors.PhaseReduce); err != nil {
		return nil, err
	}
	defer c.exitCall()

	if index < 0 || index >= len(c.funcs) {
		return nil, errors.BadIndex(errors.PhaseReduce, index, len(c.funcs))
	}
	if len(keys) != len(values) {
		return nil, errors.Arity(errors.PhaseReduce, len(keys), len(values))
	}

	keysArr, valuesArr, err := c.reduceArgs(errors.PhaseReduce, keys, values)
	if err != nil {
		return nil, err
	}
	return c.callReduce(errors.PhaseReduce, index, c.funcs[index], keysArr, valuesArr, false)
}

// Rereduce folds previously computed reductions for one function slot. The
// script sees a null keys argument and isRereduce set to true.
func (c *Context) Rereduce(index int, reductions [][]byte) ([]byte, error) {
	if err := c.enterCall(errors.PhaseRereduce); err != nil {
		return nil, err
	}
	defer c.exitCall()

	if index < 0 || index >= len(c.funcs) {
		return nil, errors.BadIndex(errors.PhaseRereduce, index, len(c.funcs))
	}

	vs := make([]interface{}, len(reductions))
	for i, raw := range reductions {
		v, err := c.parseJSON(raw)
		if err != nil {
			return nil, errors.Parse(errors.PhaseRereduce, fmt.Sprintf("reduction %d", i), err)
		}
		vs[i] = v
	}
	return c.callReduce(errors.PhaseRereduce, index, c.funcs[index], goja.Null(), c.vm.NewArray(vs...), true)
}

// reduceArgs decodes the parallel key/value buffers into script arrays.
func (c *Context) reduceArgs(phase errors.Phase, keys, values [][]byte) (goja.Value, goja.Value, error) {
	ks := make([]interface{}, len(keys))
	for i, raw := range keys {
		v, err := c.parseJSON(raw)
		if err != nil {
			return nil, nil, errors.Parse(phase, fmt.Sprintf("key %d", i), err)
		}
		ks[i] = v
	}
	vs := make([]interface{}, len(values))
	for i, raw := range values {
		v, err := c.parseJSON(raw)
		if err != nil {
			return nil, nil, errors.Parse(phase, fmt.Sprintf("value %d", i), err)
		}
		vs[i] = v
	}
	return c.vm.NewArray(ks...), c.vm.NewArray(vs...), nil
}

// callReduce invokes one reduce slot and encodes its result. Reduce
// functions must return a value; undefined is an error, not an empty
// reduction.
func (c *Context) callReduce(phase errors.Phase, index int, fn goja.Callable, keys, values goja.Value, rereduce bool) ([]byte, error) {
	v, callErr := fn(goja.Undefined(), keys, values, c.vm.ToValue(rereduce))
	if c.terminated.Load() {
		return nil, errors.Terminated(phase)
	}
	if callErr != nil {
		return nil, c.scriptError(phase, index, callErr)
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, errors.Script(phase, index, "reduce function returned no value")
	}

	buf, err := c.encodeJSON(v)
	if err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			return nil, errors.Script(phase, index, exceptionText(ex))
		}
		return nil, errors.Internal(phase, "encode reduction result", err)
	}
	return buf, nil
}
