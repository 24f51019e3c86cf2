package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/errors"
)

// Interrupt payloads distinguish host termination from the emission budget
// trip. Both surface as *goja.InterruptedError on the running call.
type interruptCause int

const (
	interruptTerminate interruptCause = iota + 1
	interruptEmitLimit
)

// ContextConfig controls context creation.
type ContextConfig struct {
	// Index selects the view flavor. Spatial contexts see only the emit and
	// log bindings; map/reduce contexts also get sum, dateToArray and
	// decodeBase64.
	Index viewengine.IndexType

	// MaxEmitBytes caps the JSON bytes one map function may emit for one
	// document. 0 means no limit.
	MaxEmitBytes int
}

// Context hosts one set of compiled view functions inside an isolated
// JavaScript runtime.
//
// A Context is NOT safe for concurrent calls: MapDoc, Reduce, ReduceOne and
// Rereduce must be serialized by the caller. Exactly two methods may overlap
// an in-flight call: Terminate (any goroutine) and Close. A terminated
// context refuses further calls until Close; hosts rebuild after termination.
type Context struct {
	vm    *goja.Runtime
	funcs []goja.Callable
	index viewengine.IndexType

	maxEmitBytes int
	lazyDoc      bool

	jsonObj       *goja.Object
	jsonParse     goja.Callable
	jsonStringify goja.Callable

	// Per-call scratch, owned by the calling goroutine.
	rows       []viewengine.KVPair
	emitBytes  int
	overflowed bool
	inMap      bool
	docUsed    bool
	logs       []string

	startNanos atomic.Int64

	// closeMu serializes Close against Terminate. Calls never hold it while
	// script runs, so Terminate cannot block on execution.
	closeMu    sync.Mutex
	closed     bool
	active     atomic.Bool
	terminated atomic.Bool
}

// NewContext compiles the given function sources into a fresh isolated
// runtime. Compilation is all-or-nothing: the first bad source fails the
// whole call and no context is returned. Compiled slots keep the order of
// sources.
func NewContext(sources []string, cfg ContextConfig) (*Context, error) {
	if err := ensureInitialized(errors.PhaseCompile); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.InvalidInput(errors.PhaseCompile, "no function sources")
	}

	c := &Context{
		vm:           goja.New(),
		index:        cfg.Index,
		maxEmitBytes: cfg.MaxEmitBytes,
		lazyDoc:      lazyDocLoad.Load(),
	}

	if err := c.bindJSON(); err != nil {
		return nil, err
	}
	if err := c.installBuiltins(); err != nil {
		return nil, err
	}

	c.funcs = make([]goja.Callable, len(sources))
	for i, src := range sources {
		fn, err := c.compileFunction(i, src)
		if err != nil {
			return nil, err
		}
		c.funcs[i] = fn
	}

	liveCtxs.Add(1)
	debugf("context created: %d function(s), index=%s, lazy_doc=%v",
		len(c.funcs), c.index, c.lazyDoc)
	return c, nil
}

// compileFunction evaluates one function expression. Sources arrive as
// anonymous `function (...) {...}` text, which only parses as an expression,
// hence the wrapping parentheses.
func (c *Context) compileFunction(index int, src string) (goja.Callable, error) {
	name := fmt.Sprintf("view_fn_%d", index)
	prg, err := goja.Compile(name, "("+src+")", false)
	if err != nil {
		return nil, errors.Compile(index, err)
	}
	v, err := c.vm.RunProgram(prg)
	if err != nil {
		return nil, errors.Compile(index, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.NotAFunction(index)
	}
	return fn, nil
}

// bindJSON caches the runtime's own JSON codec entry points. All values
// crossing the boundary go through them, never through a Go-side codec, so
// script-visible encoding quirks stay inside the sandbox.
func (c *Context) bindJSON() error {
	raw := c.vm.GlobalObject().Get("JSON")
	if raw == nil {
		return errors.Internal(errors.PhaseCompile, "JSON object missing from runtime", nil)
	}
	jsonObj := raw.ToObject(c.vm)

	parse, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		return errors.Internal(errors.PhaseCompile, "JSON.parse is not callable", nil)
	}
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return errors.Internal(errors.PhaseCompile, "JSON.stringify is not callable", nil)
	}

	c.jsonObj = jsonObj
	c.jsonParse = parse
	c.jsonStringify = stringify
	return nil
}

// parseJSON decodes one JSON buffer inside the runtime.
func (c *Context) parseJSON(data []byte) (goja.Value, error) {
	return c.jsonParse(c.jsonObj, c.vm.ToValue(string(data)))
}

// encodeJSON renders a script value back to JSON text. Undefined encodes as
// "null", matching the engine's historical emit behavior.
func (c *Context) encodeJSON(v goja.Value) ([]byte, error) {
	res, err := c.jsonStringify(c.jsonObj, v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(res) {
		return []byte("null"), nil
	}
	return []byte(res.String()), nil
}

// Close disposes the context. It fails on a second Close and while a call is
// in flight. Safe to call concurrently with Terminate.
func (c *Context) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return errors.InvalidState(errors.PhaseTeardown, "context already closed")
	}
	if c.active.Load() {
		return errors.InvalidState(errors.PhaseTeardown, "call in flight")
	}

	c.closed = true
	// Clear references to help GC
	c.vm = nil
	c.funcs = nil
	c.jsonObj = nil
	c.jsonParse = nil
	c.jsonStringify = nil
	c.rows = nil
	c.logs = nil
	liveCtxs.Add(-1)
	debugf("context closed")
	return nil
}

// Terminate requests cooperative cancellation. It is safe from any
// goroutine, returns immediately and never blocks on script execution. An
// in-flight call returns a terminated error at the next interrupt check;
// afterwards the context refuses further calls until Close. Terminating a
// closed context is a no-op.
func (c *Context) Terminate() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed || c.vm == nil {
		return
	}
	c.terminated.Store(true)
	c.vm.Interrupt(interruptTerminate)
	debugf("context terminate requested")
}

// Terminated reports whether the context has been poisoned by Terminate.
func (c *Context) Terminated() bool {
	return c.terminated.Load()
}

// enterCall gates one script call: the context must be open, not terminated,
// and idle. It resets the per-call scratch.
func (c *Context) enterCall(phase errors.Phase) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return errors.InvalidState(phase, "context is closed")
	}
	if c.terminated.Load() {
		c.closeMu.Unlock()
		return errors.Terminated(phase)
	}
	if !c.active.CompareAndSwap(false, true) {
		c.closeMu.Unlock()
		return errors.InvalidState(phase, "concurrent call on context")
	}
	c.closeMu.Unlock()

	c.startNanos.Store(time.Now().UnixNano())
	c.rows = c.rows[:0]
	c.emitBytes = 0
	c.overflowed = false
	c.docUsed = false
	c.logs = c.logs[:0]
	return nil
}

func (c *Context) exitCall() {
	c.inMap = false
	c.active.Store(false)
}

// scriptError converts an engine-level call failure into the library error
// taxonomy. Interrupts are handled by the callers through the terminated and
// overflow latches; one reaching this point means a protocol bug.
func (c *Context) scriptError(phase errors.Phase, index int, err error) error {
	switch e := err.(type) {
	case *goja.InterruptedError:
		return errors.Internal(phase, fmt.Sprintf("unexpected interrupt: %v", e.Value()), nil)
	case *goja.StackOverflowError:
		return errors.Script(phase, index, "stack overflow")
	case *goja.Exception:
		return errors.Script(phase, index, exceptionText(e))
	default:
		return errors.Internal(phase, "script call failed", err)
	}
}

func exceptionText(ex *goja.Exception) string {
	if v := ex.Value(); v != nil {
		return v.String()
	}
	return ex.Error()
}

// Functions returns the number of compiled function slots.
func (c *Context) Functions() int {
	return len(c.funcs)
}

// Index returns the view flavor the context was created for.
func (c *Context) Index() viewengine.IndexType {
	return c.index
}

// DocUsed reports whether the most recently mapped document was actually
// materialized. Always true when the context loads documents eagerly.
func (c *Context) DocUsed() bool {
	return c.docUsed
}

// Logs returns the lines captured from the script log() builtin during the
// most recent call. The backing slice is reused across calls; copy it to
// keep it past the next call.
func (c *Context) Logs() []string {
	return c.logs
}

// TaskStart returns the start time of the current or most recent call. It is
// safe to read from other goroutines while a call runs, so hosts can drive a
// timeout policy together with Terminate.
func (c *Context) TaskStart() time.Time {
	return time.Unix(0, c.startNanos.Load())
}
