package engine

import (
	"encoding/base64"

	"github.com/dop251/goja"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/errors"
)

// maxLogLines caps log() capture per call so a pathological script cannot
// grow the buffer without bound.
const maxLogLines = 1000

// Helper sources for map/reduce views, kept as script so their semantics
// match the engine's historical builtins.
const (
	sumSource = `function(values) {
	var sum = 0;
	for (var i = 0; i < values.length; ++i) {
		sum += values[i];
	}
	return sum;
}`

	dateToArraySource = `function(date) {
	date = new Date(date);
	return [
		date.getUTCFullYear(),
		date.getUTCMonth() + 1,
		date.getUTCDate(),
		date.getUTCHours(),
		date.getUTCMinutes(),
		date.getUTCSeconds()
	];
}`
)

// installBuiltins wires the host bindings every view function sees. The
// reduce helpers are map/reduce-only; spatial views get emit and log alone.
func (c *Context) installBuiltins() error {
	if err := c.vm.Set("emit", c.jsEmit); err != nil {
		return errors.Internal(errors.PhaseCompile, "install emit", err)
	}
	if err := c.vm.Set("log", c.jsLog); err != nil {
		return errors.Internal(errors.PhaseCompile, "install log", err)
	}
	if c.index != viewengine.IndexTypeMapReduce {
		return nil
	}

	helpers := []struct {
		name string
		src  string
	}{
		{"sum", sumSource},
		{"dateToArray", dateToArraySource},
	}
	for _, h := range helpers {
		prg, err := goja.Compile(h.name, "("+h.src+")", false)
		if err != nil {
			return errors.Internal(errors.PhaseCompile, "compile builtin "+h.name, err)
		}
		v, err := c.vm.RunProgram(prg)
		if err != nil {
			return errors.Internal(errors.PhaseCompile, "evaluate builtin "+h.name, err)
		}
		if err := c.vm.Set(h.name, v); err != nil {
			return errors.Internal(errors.PhaseCompile, "install builtin "+h.name, err)
		}
	}
	if err := c.vm.Set("decodeBase64", c.jsDecodeBase64); err != nil {
		return errors.Internal(errors.PhaseCompile, "install decodeBase64", err)
	}
	return nil
}

// jsEmit records one key/value row for the currently running map function.
// Both arguments round-trip through the runtime's JSON.stringify before the
// byte budget is charged. Crossing the budget latches the overflow and
// interrupts execution; script try/catch cannot swallow the interrupt, and
// nothing is recorded after the latch.
func (c *Context) jsEmit(call goja.FunctionCall) goja.Value {
	if !c.inMap {
		panic(c.vm.NewTypeError("emit is only valid inside a map function"))
	}
	if c.overflowed {
		return goja.Undefined()
	}

	key, err := c.encodeJSON(call.Argument(0))
	if err != nil {
		panic(c.rethrow(err))
	}
	value, err := c.encodeJSON(call.Argument(1))
	if err != nil {
		panic(c.rethrow(err))
	}

	c.rows = append(c.rows, viewengine.KVPair{Key: key, Value: value})
	c.emitBytes += len(key) + len(value)

	if c.maxEmitBytes > 0 && c.emitBytes > c.maxEmitBytes {
		c.overflowed = true
		c.vm.Interrupt(interruptEmitLimit)
	}
	return goja.Undefined()
}

// jsLog appends one line to the per-call log capture.
func (c *Context) jsLog(call goja.FunctionCall) goja.Value {
	if len(c.logs) < maxLogLines {
		c.logs = append(c.logs, call.Argument(0).String())
	}
	return goja.Undefined()
}

// jsDecodeBase64 decodes standard base64 to a string, throwing a TypeError
// on bad input.
func (c *Context) jsDecodeBase64(call goja.FunctionCall) goja.Value {
	raw, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
	if err != nil {
		panic(c.vm.NewTypeError("invalid base64: %s", err.Error()))
	}
	return c.vm.ToValue(string(raw))
}

// rethrow converts a failure from the runtime's JSON codecs back into a
// value the script sees as a thrown exception.
func (c *Context) rethrow(err error) goja.Value {
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value()
	}
	return c.vm.NewGoError(err)
}

// lazyDoc defers document parsing to the first property access, so map
// functions that never touch the document skip the decode entirely. The
// first access also flips the context's docUsed flag, which hosts read to
// decide whether fetching full document bodies pays off. A parse failure is
// thrown at the access point, failing only the touching function.
type lazyDoc struct {
	ctx *Context
	raw []byte
	obj *goja.Object
}

var _ goja.DynamicObject = (*lazyDoc)(nil)

func (d *lazyDoc) materialize() *goja.Object {
	if d.obj == nil {
		d.ctx.docUsed = true
		v, err := d.ctx.parseJSON(d.raw)
		if err != nil {
			panic(d.ctx.rethrow(err))
		}
		d.obj = v.ToObject(d.ctx.vm)
	}
	return d.obj
}

func (d *lazyDoc) Get(key string) goja.Value {
	return d.materialize().Get(key)
}

func (d *lazyDoc) Set(key string, val goja.Value) bool {
	return d.materialize().Set(key, val) == nil
}

func (d *lazyDoc) Has(key string) bool {
	v := d.materialize().Get(key)
	return v != nil && !goja.IsUndefined(v)
}

func (d *lazyDoc) Delete(key string) bool {
	return d.materialize().Delete(key) == nil
}

func (d *lazyDoc) Keys() []string {
	return d.materialize().Keys()
}
