// Package vm implements the bytecode execution core: the dispatch
// loop, the non-local transfer handler, the arithmetic/coercion
// kernel, call handling and the cooperative coroutine scheduler.
package vm

import (
	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// Longjmp types.  Control-transfer opcodes and the coroutine built-ins
// populate the heap's longjmp state with one of these and trap to the
// transfer handler.
const (
	LJUnknown = iota
	LJReturn
	LJThrow
	LJBreak
	LJContinue
	LJYield
	LJResume
	LJNormal
)

var ljNames = map[int]string{
	LJUnknown:  "unknown",
	LJReturn:   "return",
	LJThrow:    "throw",
	LJBreak:    "break",
	LJContinue: "continue",
	LJYield:    "yield",
	LJResume:   "resume",
	LJNormal:   "normal",
}

// ljState is the per-heap longjmp state.  Outside the transfer handler
// and between instructions Type is LJUnknown and both values hold the
// unused sentinel.
type ljState struct {
	Type    int
	Value1  value.Value
	Value2  value.Value
	IsError bool
}

// ljSignal is the panic sentinel used in place of longjmp.  All state
// rides in the heap's ljState; the panic only transfers control back to
// the executor's catchpoint.
type ljSignal struct{}

// Config carries the runtime knobs.
type Config struct {
	// InterruptInit is the instruction count between interrupt hook
	// invocations.
	InterruptInit int

	// CallRecursionLimit bounds host-call nesting (native calls and
	// constructor calls recurse on the Go stack).
	CallRecursionLimit int

	// ValstackSpare is the slack kept above nregs when a value stack
	// is reconfigured after an unwind.
	ValstackSpare int

	// RegexpCacheSize bounds the compiled-regexp LRU cache.
	RegexpCacheSize int

	// StepLimit, when positive, makes the default interrupt handler
	// throw a RangeError once the cumulative instruction count
	// reaches it.  Zero disables the budget.
	StepLimit int

	// Checks enables the per-instruction invariant checks.
	Checks bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		InterruptInit:      4096,
		CallRecursionLimit: 1000,
		ValstackSpare:      64,
		RegexpCacheSize:    64,
		Checks:             true,
	}
}

// Heap is the per-runtime handle.  It owns the longjmp state, the
// current-thread pointer, the interrupt counters and the global object
// graph.  All threads of a runtime share it; only the current thread
// touches it at any instant.
type Heap struct {
	cfg Config

	lj        ljState
	curThread *Thread

	interruptInit    int
	interruptCounter int
	stepCount        int

	callDepth int

	globalObject *object.Object
	globalEnv    object.Env

	objectProto   *object.Object
	functionProto *object.Object
	errorProto    *object.Object
	arrayProto    *object.Object
	threadProto   *object.Object

	regexpCache *lru.Cache

	builtinEval   *object.Object
	builtinResume *object.Object
	builtinYield  *object.Object

	// InterruptHandler is invoked when the interrupt counter trips.
	// It returns the next init value; returning 0 requests an
	// interrupt before the very next instruction.  Errors thrown from
	// the handler follow the normal throw path.
	InterruptHandler func(h *Heap, thr *Thread) int

	// EvalCompile is the compiler hook behind the eval built-in.
	EvalCompile func(src string, direct bool) (*bytecode.Function, error)

	// AugmentError, when set, is applied to a value thrown by the
	// THROW opcode.  Re-raises (ENDFIN) do not re-augment.
	AugmentError func(h *Heap, v value.Value) value.Value
}

// NewHeap creates a runtime with its global object, environment and
// built-ins, and an initial thread made current.
func NewHeap(cfg Config) *Heap {
	h := &Heap{
		cfg:              cfg,
		interruptInit:    cfg.InterruptInit,
		interruptCounter: cfg.InterruptInit,
	}
	h.regexpCache, _ = lru.New(cfg.RegexpCacheSize)
	h.InterruptHandler = defaultInterruptHandler

	h.objectProto = object.New(object.ClassObject, nil)
	h.functionProto = object.New(object.ClassFunction, h.objectProto)
	h.errorProto = object.New(object.ClassError, h.objectProto)
	h.arrayProto = object.New(object.ClassArray, h.objectProto)
	h.threadProto = object.New(object.ClassThread, h.objectProto)

	h.globalObject = object.New(object.ClassObject, h.objectProto)
	h.globalEnv = object.NewObjEnv(nil, h.globalObject, false)

	h.installBuiltins()

	main := newThread(h, "main")
	main.state = ThreadRunning
	h.curThread = main
	return h
}

// Config returns the runtime configuration.
func (h *Heap) Config() Config { return h.cfg }

// Global returns the global object.
func (h *Heap) Global() *object.Object { return h.globalObject }

// GlobalEnv returns the global environment record.
func (h *Heap) GlobalEnv() object.Env { return h.globalEnv }

// CurrentThread returns the running thread.
func (h *Heap) CurrentThread() *Thread { return h.curThread }

// RegexpCacheLen exposes the regexp cache occupancy (test hook).
func (h *Heap) RegexpCacheLen() int { return h.regexpCache.Len() }

// switchThread makes next the current thread, saving and restoring the
// interrupt counter the way a context switch must.
func (h *Heap) switchThread(next *Thread) {
	if h.curThread != nil {
		h.interruptCounter = h.curThread.interruptCounter
	}
	h.curThread = next
	next.interruptCounter = h.interruptCounter
	log.WithField("thread", next.name).Trace("thread switch")
}

// setupLj populates the longjmp state.  The previous payload values are
// released after the new ones are installed.
func (h *Heap) setupLj(typ int, v1, v2 value.Value) {
	old1, old2 := h.lj.Value1, h.lj.Value2
	h.lj.Type = typ
	h.lj.IsError = false
	h.lj.Value1 = v1
	h.lj.Value2 = v2
	v1.Acquire()
	v2.Acquire()
	old1.Release()
	old2.Release()
}

// wipeLj resets the longjmp state to its between-instructions shape.
func (h *Heap) wipeLj() {
	h.lj.Type = LJUnknown
	h.lj.IsError = false
	old1, old2 := h.lj.Value1, h.lj.Value2
	h.lj.Value1 = value.Unused()
	h.lj.Value2 = value.Unused()
	old1.Release()
	old2.Release()
}

// longjmp traps to the innermost executor catchpoint.  The longjmp
// state must be populated first.
func (h *Heap) longjmp() {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{
			"type":    ljNames[h.lj.Type],
			"iserror": h.lj.IsError,
		}).Debug("longjmp")
	}
	panic(ljSignal{})
}

// Throw raises v as a script error through the normal throw path.
func (h *Heap) Throw(v value.Value) {
	h.setupLj(LJThrow, v, value.Unused())
	h.lj.IsError = true
	h.longjmp()
}
