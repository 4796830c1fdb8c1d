package vm

import (
	"math"

	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// installBuiltins populates the global object with the values the core
// itself depends on: eval and the Thread namespace.  The full built-in
// library belongs to the embedding runtime.
func (h *Heap) installBuiltins() {
	g := h.globalObject
	g.Define("undefined", value.Undefined(), 0)
	g.Define("NaN", value.Number(math.NaN()), 0)
	g.Define("Infinity", value.Number(math.Inf(1)), 0)
	g.Define("global", object.ToValue(g), object.FlagWritable|object.FlagConfigurable)

	h.builtinEval = h.NewNativeFunction("eval", biEval)
	g.Define("eval", object.ToValue(h.builtinEval), object.FlagWritable|object.FlagConfigurable)

	thread := object.New(object.ClassObject, h.objectProto)
	h.builtinResume = h.NewNativeFunction("resume", biThreadResume)
	h.builtinYield = h.NewNativeFunction("yield", biThreadYield)
	thread.Define("create", object.ToValue(h.NewNativeFunction("create", biThreadCreate)), object.FlagWritable|object.FlagConfigurable)
	thread.Define("resume", object.ToValue(h.builtinResume), object.FlagWritable|object.FlagConfigurable)
	thread.Define("yield", object.ToValue(h.builtinYield), object.FlagWritable|object.FlagConfigurable)
	g.Define("Thread", object.ToValue(thread), object.FlagWritable|object.FlagConfigurable)
}

// NewThread creates an inactive coroutine whose body is fn.  The
// thread starts on its first resume, receiving the resume value as the
// body's single argument.
func (h *Heap) NewThread(name string, fn value.Value) value.Value {
	if !isCallable(fn) {
		h.throwTypeError("thread body must be callable")
	}
	t := newThread(h, name)
	t.state = ThreadInactive
	t.initialFunc = fn
	fn.Acquire()
	o := object.New(object.ClassThread, h.threadProto)
	o.Data = t
	t.obj = o
	return object.ToValue(o)
}

func biThreadCreate(c *NativeCall) value.Value {
	if len(c.Args) < 1 {
		c.Heap.throwTypeError("thread body required")
	}
	name := "coroutine"
	if len(c.Args) >= 2 && c.Args[1].IsString() {
		name = c.Args[1].Str()
	}
	return c.Heap.NewThread(name, c.Args[0])
}

// biThreadResume validates a resume and traps to the transfer handler.
// The handler performs all state transitions.
func biThreadResume(c *NativeCall) value.Value {
	h := c.Heap
	if len(c.Args) < 1 {
		h.throwTypeError("resume target required")
	}
	rt := threadFromValue(c.Args[0])
	if rt == nil {
		h.throwTypeError("resume target is not a thread")
	}
	if rt == h.curThread {
		h.throwTypeError("cannot resume the running thread")
	}
	if rt.state != ThreadInactive && rt.state != ThreadYielded {
		h.throwTypeError("cannot resume a " + threadStateNames[rt.state] + " thread")
	}
	// The yield/return delivery writes into the compiled activation
	// below this native frame; a host-side resume has no such frame.
	t := c.Thread
	if len(t.callstack) < 2 || t.callstack[len(t.callstack)-2].Template == nil {
		h.throwTypeError("resume must be called from script code")
	}
	v := value.Undefined()
	if len(c.Args) >= 2 {
		v = c.Args[1]
	}
	isError := len(c.Args) >= 3 && ToBoolean(c.Args[2])

	h.setupLj(LJResume, v, c.Args[0])
	h.lj.IsError = isError
	h.longjmp()
	return value.Undefined() // not reached
}

// biThreadYield validates a yield and traps.  A yield is rejected when
// the thread has no resumer (the entry thread) or when any activation
// below the yield site blocks it (host calls and constructor calls
// keep the prevent count above the built-in's own contribution).
func biThreadYield(c *NativeCall) value.Value {
	h := c.Heap
	thr := h.curThread
	if thr.resumer == nil {
		h.throwTypeError("yield from entry thread")
	}
	if thr.preventCount != 1 {
		h.throwTypeError("yield blocked by native or constructor call")
	}
	if len(thr.callstack) < 2 || thr.callstack[len(thr.callstack)-2].Template == nil {
		h.throwTypeError("yield must be called from script code")
	}
	v := value.Undefined()
	if len(c.Args) >= 1 {
		v = c.Args[0]
	}
	isError := len(c.Args) >= 2 && ToBoolean(c.Args[1])

	h.setupLj(LJYield, v, value.Unused())
	h.lj.IsError = isError
	h.longjmp()
	return value.Undefined() // not reached
}

// biEval compiles and runs a source string via the heap's compiler
// hook.  A direct call (the call identifier in the source was the
// literal 'eval') evaluates in the caller's environment; an indirect
// call uses the global environment.
func biEval(c *NativeCall) value.Value {
	h := c.Heap
	if len(c.Args) < 1 {
		return value.Undefined()
	}
	src := c.Args[0]
	if !src.IsString() {
		return src
	}
	if h.EvalCompile == nil {
		h.Throw(h.makeError("Error", "no eval compiler registered"))
	}
	direct := c.DirectEval()
	fn, err := h.EvalCompile(src.Str(), direct)
	if err != nil {
		h.Throw(h.makeError("SyntaxError", err.Error()))
	}

	var env object.Env = h.globalEnv
	this := object.ToValue(h.globalObject)
	if direct {
		// The compiled activation below the eval native frame is the
		// caller whose environment and 'this' binding eval must see.
		t := c.Thread
		callerIdx := len(t.callstack) - 2
		if callerIdx >= 0 && t.callstack[callerIdx].Template != nil {
			env = h.activationEnv(t, callerIdx)
			this = t.valstack[t.callstack[callerIdx].IdxBottom-1]
		}
	}
	clos := h.NewClosure(fn, env, env)
	return h.callFunction(object.ToValue(clos), this, nil)
}
