package vm

import (
	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// Thread states.
const (
	ThreadInactive = iota
	ThreadRunning
	ThreadResumed
	ThreadYielded
	ThreadTerminated
)

var threadStateNames = map[int]string{
	ThreadInactive:   "inactive",
	ThreadRunning:    "running",
	ThreadResumed:    "resumed",
	ThreadYielded:    "yielded",
	ThreadTerminated: "terminated",
}

// Activation flags.
const (
	// ActPreventYield marks activations a yield may not traverse:
	// host calls and constructor calls.  The thread keeps a running
	// count of live flagged activations.
	ActPreventYield = 1 << iota
	ActConstructor
	ActDirectEval
)

// Activation is a call frame.  Value-stack positions are absolute
// indices, never pointers: any value mutation may reallocate the
// stacks.
type Activation struct {
	Fn        value.Value
	Template  *bytecode.Function // non-nil for compiled functions
	PC        int
	IdxBottom int // absolute index of register 0
	// IdxRetval is where the result of the call this frame is
	// currently making must be written.  Every CALL this frame
	// executes refreshes it; return, yield and resume delivery read
	// it back.
	IdxRetval int
	LexEnv    object.Env
	VarEnv    object.Env
	Flags     int
}

// Catcher kinds.
const (
	CatTCF = iota // try/catch/finally triad
	CatLabel
)

// Catcher flags.
const (
	CatCatchEnabled = 1 << iota
	CatFinallyEnabled
	CatCatchBindingEnabled
	CatLexEnvActive
)

// Catcher is an entry in the catch stack.  PCBase addresses the
// 2-instruction jump slot pair that follows LABEL/TRYCATCH; IdxBase is
// the absolute index of the 2-slot scratch region for TCF catchers.
type Catcher struct {
	Type           int
	Flags          int
	Label          int
	CallstackIndex int
	PCBase         int
	IdxBase        int
	VarName        string
}

// Thread owns three parallel stacks.  A resumed thread is shared by its
// resumer and the scheduler; the resumer back-reference is weak
// (ownership stays with whoever created the thread).
type Thread struct {
	heap *Heap
	name string
	obj  *object.Object // script-visible wrapper, nil for the bootstrap thread

	valstack       []value.Value
	valstackBottom int

	callstack  []Activation
	catchstack []Catcher

	state        int
	resumer      *Thread
	preventCount int

	interruptCounter int

	initialFunc value.Value // for inactive threads: the body function
}

func newThread(h *Heap, name string) *Thread {
	return &Thread{
		heap:             h,
		name:             name,
		interruptCounter: h.interruptInit,
	}
}

// State returns the thread state.
func (t *Thread) State() int { return t.state }

// value stack -----------------------------------------------------------

// top returns the stack top relative to the register window bottom.
func (t *Thread) top() int { return len(t.valstack) - t.valstackBottom }

func (t *Thread) push(v value.Value) {
	t.valstack = append(t.valstack, v)
	v.Acquire()
}

// popValue removes the top slot and transfers its reference to the
// caller, which must Release it.
func (t *Thread) popValue() value.Value {
	n := len(t.valstack) - 1
	v := t.valstack[n]
	t.valstack[n] = value.Unused()
	t.valstack = t.valstack[:n]
	return v
}

func (t *Thread) pop() {
	t.popValue().Release()
}

// writeSlot overwrites an absolute slot with the mutation discipline:
// save old, install new, acquire new, release old.  The release may
// run finalizers; no cached stack state survives it.
func (t *Thread) writeSlot(abs int, v value.Value) {
	old := t.valstack[abs]
	t.valstack[abs] = v
	v.Acquire()
	old.Release()
}

// reg reads register i of the current window.
func (t *Thread) reg(i int) value.Value { return t.valstack[t.valstackBottom+i] }

// setReg writes register i of the current window.
func (t *Thread) setReg(i int, v value.Value) { t.writeSlot(t.valstackBottom+i, v) }

// replace pops the stack top into register i.
func (t *Thread) replace(i int) {
	v := t.popValue()
	t.writeSlot(t.valstackBottom+i, v)
	v.Release()
}

// setTop grows (with undefined) or shrinks (releasing) the stack so the
// top sits n slots above the window bottom.
func (t *Thread) setTop(n int) {
	target := t.valstackBottom + n
	for len(t.valstack) > target {
		t.pop()
	}
	for len(t.valstack) < target {
		t.push(value.Undefined())
	}
}

// setTopAbs is setTop with an absolute target index.
func (t *Thread) setTopAbs(abs int) {
	t.setTop(abs - t.valstackBottom)
}

// requireStack ensures capacity for n more slots without moving the
// top.  Mirrors the embedder API primitive of the same name.
func (t *Thread) requireStack(n int) {
	need := len(t.valstack) + n
	if cap(t.valstack) < need {
		grown := make([]value.Value, len(t.valstack), need+t.heap.cfg.ValstackSpare)
		copy(grown, t.valstack)
		t.valstack = grown
	}
}

// call stack ------------------------------------------------------------

func (t *Thread) topActIndex() int { return len(t.callstack) - 1 }

// topAct returns the top activation.  The pointer is only valid until
// the next operation that may grow the call stack or run user code.
func (t *Thread) topAct() *Activation { return &t.callstack[len(t.callstack)-1] }

func (t *Thread) pushActivation(act Activation) {
	act.Fn.Acquire()
	if act.LexEnv != nil {
		act.LexEnv.Acquire()
	}
	if act.VarEnv != nil {
		act.VarEnv.Acquire()
	}
	if act.Flags&ActPreventYield != 0 {
		t.preventCount++
	}
	t.callstack = append(t.callstack, act)
}

// callstackUnwind destroys activations [k, top) in reverse order,
// releasing their function and environment references.
func (t *Thread) callstackUnwind(k int) {
	for i := len(t.callstack) - 1; i >= k; i-- {
		act := &t.callstack[i]
		if act.Flags&ActPreventYield != 0 {
			t.preventCount--
		}
		if act.LexEnv != nil {
			act.LexEnv.Release()
			act.LexEnv = nil
		}
		if act.VarEnv != nil {
			act.VarEnv.Release()
			act.VarEnv = nil
		}
		act.Fn.Release()
		act.Fn = value.Unused()
	}
	t.callstack = t.callstack[:k]
}

// catch stack -----------------------------------------------------------

func (t *Thread) pushCatcher(cat Catcher) {
	if t.heap.cfg.Checks && len(t.catchstack) > 0 {
		// The catch stack is monotone by owning frame index.
		if t.catchstack[len(t.catchstack)-1].CallstackIndex > cat.CallstackIndex {
			t.heap.internalError("catch stack frame order violated")
		}
	}
	t.catchstack = append(t.catchstack, cat)
}

// catchstackUnwind destroys catchers [k, top) in reverse order.  A
// catcher with an active lexical environment restores the owning
// activation's lex env to its outer record.
func (t *Thread) catchstackUnwind(k int) {
	for i := len(t.catchstack) - 1; i >= k; i-- {
		cat := &t.catchstack[i]
		if cat.Flags&CatLexEnvActive != 0 && cat.CallstackIndex < len(t.callstack) {
			act := &t.callstack[cat.CallstackIndex]
			if act.LexEnv != nil {
				old := act.LexEnv
				act.LexEnv = old.OuterEnv()
				if act.LexEnv != nil {
					act.LexEnv.Acquire()
				}
				old.Release()
			}
		}
		cat.VarName = ""
	}
	t.catchstack = t.catchstack[:k]
}

// reconfigValstack makes a compiled-function activation ready to
// dispatch after a non-local unwind: bottom moves to the frame's base,
// the top is clamped so retvalCount slots sit at/above IdxRetval, then
// the window is extended to exactly nregs (with spare capacity).
func (t *Thread) reconfigValstack(actIdx, retvalCount int) {
	act := &t.callstack[actIdx]
	t.valstackBottom = act.IdxBottom
	t.setTop(act.IdxRetval - act.IdxBottom + retvalCount)
	t.requireStack(act.Template.NRegs + t.heap.cfg.ValstackSpare)
	t.setTop(act.Template.NRegs)
}

// terminate empties a finished thread and marks it Terminated.
func (t *Thread) terminate() {
	t.catchstackUnwind(0)
	t.callstackUnwind(0)
	t.valstackBottom = 0
	t.setTop(0)
	t.initialFunc.Release()
	t.initialFunc = value.Unused()
	t.state = ThreadTerminated
}
