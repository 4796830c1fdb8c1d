package vm

import (
	log "github.com/sirupsen/logrus"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// Host-call flags.
const (
	callFlagConstructor = 1 << iota
	callFlagDirectEval
	callFlagTailcall
	callFlagIsResume
)

// closure is the payload of a compiled function object: the template
// plus the captured environments.
type closure struct {
	tmpl   *bytecode.Function
	lexEnv object.Env
	varEnv object.Env
}

// nativeFunc is the payload of a native function object, and also the
// lightfunc payload (a lightfunc is the same callable without object
// identity).
type nativeFunc struct {
	name string
	fn   NativeFunc
}

// boundFunc is the payload of a Function.prototype.bind result.
type boundFunc struct {
	target value.Value
	this   value.Value
	args   []value.Value
}

// NativeCall carries the arguments of a native function invocation.
type NativeCall struct {
	Heap   *Heap
	Thread *Thread
	This   value.Value
	Args   []value.Value
	Flags  int
}

// DirectEval reports whether the call site was a direct 'eval(...)'.
func (c *NativeCall) DirectEval() bool { return c.Flags&callFlagDirectEval != 0 }

// Constructor reports whether the call is a constructor invocation.
func (c *NativeCall) Constructor() bool { return c.Flags&callFlagConstructor != 0 }

// NativeFunc is the Go signature of native functions.  A native either
// returns its result or raises through Heap.Throw (or the coroutine
// built-ins' traps); it runs to completion before the executor resumes.
type NativeFunc func(c *NativeCall) value.Value

// isCallable reports whether v can be invoked.
func isCallable(v value.Value) bool {
	if v.IsLightFunc() {
		return true
	}
	if !v.IsObject() {
		return false
	}
	switch object.FromValue(v).Data.(type) {
	case *closure, *nativeFunc, *boundFunc:
		return true
	}
	return false
}

// NewClosure instantiates a function object from a template and the
// captured environments.
func (h *Heap) NewClosure(tmpl *bytecode.Function, lexEnv, varEnv object.Env) *object.Object {
	o := object.New(object.ClassFunction, h.functionProto)
	o.Data = &closure{tmpl: tmpl, lexEnv: lexEnv, varEnv: varEnv}
	if lexEnv != nil {
		lexEnv.Acquire()
	}
	if varEnv != nil {
		varEnv.Acquire()
	}
	o.Define("name", value.String(tmpl.Name), 0)
	proto := object.New(object.ClassObject, h.objectProto)
	proto.Define("constructor", object.ToValue(o), object.FlagWritable|object.FlagConfigurable)
	o.Define("prototype", object.ToValue(proto), object.FlagWritable)
	return o
}

// NewNativeFunction wraps a Go function as a callable object.
func (h *Heap) NewNativeFunction(name string, fn NativeFunc) *object.Object {
	o := object.New(object.ClassFunction, h.functionProto)
	o.Data = &nativeFunc{name: name, fn: fn}
	o.Define("name", value.String(name), 0)
	return o
}

// NewLightFunc wraps a Go function as a lightfunc value.
func NewLightFunc(name string, fn NativeFunc) value.Value {
	return value.LightFunc(&nativeFunc{name: name, fn: fn})
}

// NewBoundFunction builds a bound function object.
func (h *Heap) NewBoundFunction(target, this value.Value, args []value.Value) *object.Object {
	o := object.New(object.ClassFunction, h.functionProto)
	bf := &boundFunc{target: target, this: this, args: append([]value.Value(nil), args...)}
	o.Data = bf
	target.Acquire()
	this.Acquire()
	for _, a := range bf.args {
		a.Acquire()
	}
	o.Define("name", value.String("bound"), 0)
	return o
}

// initActivationEnv performs the delayed environment initialization for
// a compiled activation: a fresh declarative record whose outer is the
// closure's captured lexical environment.  May allocate (and therefore
// run finalizers); the caller must re-resolve the activation after.
func (h *Heap) initActivationEnv(t *Thread, actIdx int) {
	act := &t.callstack[actIdx]
	if act.LexEnv != nil {
		return
	}
	if act.Template != nil && act.Template.Global {
		// Program-level code binds directly in the global environment.
		act.LexEnv = h.globalEnv
		act.VarEnv = h.globalEnv
		h.globalEnv.Acquire()
		h.globalEnv.Acquire()
		return
	}
	var outer object.Env = h.globalEnv
	if act.Fn.IsObject() {
		if c, ok := object.FromValue(act.Fn).Data.(*closure); ok && c.lexEnv != nil {
			outer = c.lexEnv
		}
	}
	env := object.NewDeclEnv(outer)
	act = &t.callstack[actIdx]
	act.LexEnv = env
	act.VarEnv = env
	env.Acquire()
	env.Acquire()
}

// resolveBound follows the bound-function chain at the call site
// [func this arg1..argN] rooted at absolute index base, shifting bound
// arguments into place and rewriting the base slot with the innermost
// non-bound callee.  Returns the updated argument count.
func (h *Heap) resolveBound(t *Thread, base, numArgs int) int {
	for {
		fn := t.valstack[base]
		if !fn.IsObject() {
			return numArgs
		}
		bf, ok := object.FromValue(fn).Data.(*boundFunc)
		if !ok {
			return numArgs
		}
		merged := make([]value.Value, 0, len(bf.args)+numArgs)
		merged = append(merged, bf.args...)
		merged = append(merged, t.valstack[base+2:base+2+numArgs]...)
		t.writeSlot(base, bf.target)
		t.writeSlot(base+1, bf.this)
		t.setTopAbs(base + 2 + len(merged))
		for i, a := range merged {
			t.writeSlot(base+2+i, a)
		}
		numArgs = len(merged)
	}
}

// ecmaCallSetup attempts the compiled-to-compiled call setup for the
// call site [func this args] at absolute base.  On success the new
// activation is installed (reusing the current frame for a legal
// tailcall), the register window is adjusted, and the dispatcher must
// re-enter the dispatch loop with refreshed state.  A false return
// means the resolved callee is native or light and the host-call path
// applies.  Constructor calls never come here.
func (h *Heap) ecmaCallSetup(t *Thread, base, numArgs, flags int) bool {
	if len(t.callstack) > 0 {
		// The caller's pending-result slot: return, yield and resume
		// delivery write here.
		t.callstack[len(t.callstack)-1].IdxRetval = base
	}
	numArgs = h.resolveBound(t, base, numArgs)

	fn := t.valstack[base]
	if !fn.IsObject() {
		return false
	}
	c, ok := object.FromValue(fn).Data.(*closure)
	if !ok {
		return false
	}

	tailcall := flags&callFlagTailcall != 0
	if tailcall {
		// A tailcall is illegal when any catcher is live for the
		// current frame (a finally or label must see the unwind) or
		// when the current frame is not a plain compiled call.
		curIdx := t.topActIndex()
		for i := len(t.catchstack) - 1; i >= 0; i-- {
			if t.catchstack[i].CallstackIndex == curIdx {
				tailcall = false
				break
			}
		}
		if t.callstack[curIdx].Flags&(ActConstructor|ActPreventYield) != 0 {
			tailcall = false
		}
	}

	if tailcall {
		curIdx := t.topActIndex()
		cur := &t.callstack[curIdx]
		dst := cur.IdxBottom - 2
		for i := 0; i < numArgs+2; i++ {
			t.writeSlot(dst+i, t.valstack[base+i])
		}
		t.setTopAbs(dst + 2 + numArgs)

		cur = &t.callstack[curIdx]
		fn.Acquire()
		cur.Fn.Release()
		cur.Fn = fn
		cur.Template = c.tmpl
		cur.PC = 0
		if cur.LexEnv != nil {
			cur.LexEnv.Release()
			cur.LexEnv = nil
		}
		if cur.VarEnv != nil {
			cur.VarEnv.Release()
			cur.VarEnv = nil
		}
		cur.Flags &^= ActDirectEval

		t.valstackBottom = cur.IdxBottom
		t.requireStack(c.tmpl.NRegs + h.cfg.ValstackSpare)
		t.setTop(c.tmpl.NRegs)
		log.WithField("func", c.tmpl.Name).Trace("tailcall setup")
		return true
	}

	t.pushActivation(Activation{
		Fn:        fn,
		Template:  c.tmpl,
		IdxBottom: base + 2,
		IdxRetval: base,
	})
	t.valstackBottom = base + 2
	t.requireStack(c.tmpl.NRegs + h.cfg.ValstackSpare)
	t.setTop(c.tmpl.NRegs)
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithFields(log.Fields{"func": c.tmpl.Name, "depth": len(t.callstack)}).Trace("ecma call setup")
	}
	return true
}

// handleCall is the host-call path: native functions, light functions,
// constructor calls, and compiled calls entered from outside the
// dispatch loop.  The call site [func this arg1..argN] must sit at the
// top of t's value stack; on return it is replaced by [retval].
// Recursion depth on the Go stack is bounded by CallRecursionLimit.
func (h *Heap) handleCall(t *Thread, numArgs, flags int) {
	h.callDepth++
	if h.callDepth > h.cfg.CallRecursionLimit {
		h.callDepth--
		h.throwRangeError("call recursion limit reached")
	}
	defer func() { h.callDepth-- }()

	base := len(t.valstack) - numArgs - 2
	savedBottom := t.valstackBottom
	if len(t.callstack) > 0 {
		t.callstack[len(t.callstack)-1].IdxRetval = base
	}

	numArgs = h.resolveBound(t, base, numArgs)
	fn := t.valstack[base]

	if flags&callFlagConstructor != 0 {
		// The freshly created instance becomes 'this'.
		proto := h.objectProto
		if fn.IsObject() {
			if p, _, ok := object.FromValue(fn).Lookup("prototype"); ok && p.Value.IsObject() {
				proto = object.FromValue(p.Value)
			}
		}
		inst := object.New(object.ClassObject, proto)
		t.writeSlot(base+1, object.ToValue(inst))
	}

	var nf *nativeFunc
	var cl *closure
	switch {
	case fn.IsLightFunc():
		nf, _ = fn.Light().(*nativeFunc)
	case fn.IsObject():
		switch data := object.FromValue(fn).Data.(type) {
		case *nativeFunc:
			nf = data
		case *closure:
			cl = data
		}
	}
	if nf == nil && cl == nil {
		h.throwTypeError("call target not callable")
	}

	actFlags := ActPreventYield
	if flags&callFlagConstructor != 0 {
		actFlags |= ActConstructor
	}
	if flags&callFlagDirectEval != 0 {
		actFlags |= ActDirectEval
	}

	if cl != nil {
		t.pushActivation(Activation{
			Fn:        fn,
			Template:  cl.tmpl,
			IdxBottom: base + 2,
			IdxRetval: base,
			Flags:     actFlags,
		})
		calleeIdx := t.topActIndex()
		t.valstackBottom = base + 2
		t.requireStack(cl.tmpl.NRegs + h.cfg.ValstackSpare)
		t.setTop(cl.tmpl.NRegs)

		h.executeBytecode(t)

		// The executor left the return value on top.
		retval := t.popValue()
		h.finishCall(t, calleeIdx, savedBottom, base, retval, flags)
		return
	}

	args := make([]value.Value, numArgs)
	copy(args, t.valstack[base+2:base+2+numArgs])
	this := t.valstack[base+1]

	t.pushActivation(Activation{
		Fn:        fn,
		IdxBottom: base + 2,
		IdxRetval: base,
		Flags:     actFlags,
	})
	calleeIdx := t.topActIndex()
	t.valstackBottom = base + 2

	res := nf.fn(&NativeCall{Heap: h, Thread: t, This: this, Args: args, Flags: flags})
	h.finishCall(t, calleeIdx, savedBottom, base, res, flags)
}

// finishCall dismantles a host call's activation and replaces the call
// site with the return value.
func (h *Heap) finishCall(t *Thread, calleeIdx, savedBottom, base int, retval value.Value, flags int) {
	k := len(t.catchstack)
	for k > 0 && t.catchstack[k-1].CallstackIndex >= calleeIdx {
		k--
	}
	t.catchstackUnwind(k)
	t.callstackUnwind(calleeIdx)
	t.valstackBottom = savedBottom

	if flags&callFlagConstructor != 0 && !retval.IsObject() {
		retval = t.valstack[base+1]
	}
	t.setTopAbs(base)
	t.push(retval)
	retval.Release()
}

// callFunction invokes fn on the current thread and returns the result.
// Used by coercions, accessors and literal initializers.
func (h *Heap) callFunction(fn, this value.Value, args []value.Value) value.Value {
	t := h.curThread
	t.requireStack(len(args) + 2)
	t.push(fn)
	t.push(this)
	for _, a := range args {
		t.push(a)
	}
	h.handleCall(t, len(args), 0)
	res := t.popValue()
	res.Release()
	return res
}

// Call invokes fn from the embedder, converting an uncaught throw into
// a ThrownError and restoring the thread to its pre-call state.
func (h *Heap) Call(fn, this value.Value, args ...value.Value) (res value.Value, err error) {
	t := h.curThread
	savedTop := len(t.valstack)
	savedBottom := t.valstackBottom
	savedCalls := len(t.callstack)
	savedCatch := len(t.catchstack)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(ljSignal); !ok {
			panic(r)
		}
		v := h.lj.Value1
		h.wipeLj()
		t = h.curThread
		t.catchstackUnwind(savedCatch)
		t.callstackUnwind(savedCalls)
		t.valstackBottom = savedBottom
		t.setTopAbs(savedTop)
		res = value.Undefined()
		err = &ThrownError{Value: v}
	}()

	res = h.callFunction(fn, this, args)
	return res, nil
}

// CallConstructor performs a 'new' invocation from the embedder side.
func (h *Heap) CallConstructor(fn value.Value, args ...value.Value) (res value.Value, err error) {
	t := h.curThread
	savedTop := len(t.valstack)
	savedBottom := t.valstackBottom
	savedCalls := len(t.callstack)
	savedCatch := len(t.catchstack)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(ljSignal); !ok {
			panic(r)
		}
		v := h.lj.Value1
		h.wipeLj()
		t = h.curThread
		t.catchstackUnwind(savedCatch)
		t.callstackUnwind(savedCalls)
		t.valstackBottom = savedBottom
		t.setTopAbs(savedTop)
		res = value.Undefined()
		err = &ThrownError{Value: v}
	}()

	t.requireStack(len(args) + 2)
	t.push(fn)
	t.push(value.Undefined())
	for _, a := range args {
		t.push(a)
	}
	h.handleCall(t, len(args), callFlagConstructor)
	out := t.popValue()
	out.Release()
	return out, nil
}
