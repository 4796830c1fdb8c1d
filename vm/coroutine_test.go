package vm

import (
	"testing"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// threadBody is a compiled function body for a coroutine:
//
//	function (x) { return Thread.yield(x + 1); }
func threadBody() *bytecode.Function {
	return &bytecode.Function{
		Name:   "body",
		NRegs:  5,
		Consts: []value.Value{value.String("Thread"), value.String("yield")},
		Code: []bytecode.Instr{
			ldint(1, 1),
			bytecode.Enc(bytecode.OpAdd, 1, 0, 1), // r1 = x + 1
			bytecode.EncBC(bytecode.OpGetVar, 2, 0),
			bytecode.Enc(bytecode.OpCSProp, 2, 2, k(1)), // r2=yield r3=Thread
			bytecode.EncBC(bytecode.OpLdReg, 4, 1),      // arg
			bytecode.Enc(bytecode.OpCall, 0, 2, 1),      // r2 = yield(x+1)
			ret(2),
		},
	}
}

func TestCoroutineRoundTrip(t *testing.T) {
	// First resume returns x+1 through the yield; second resume
	// becomes the yield expression's value, the body returns it and
	// the thread terminates.
	h := newTestHeap()
	consts := []value.Value{
		value.String("Thread"),
		value.String("create"),
		value.String("resume"),
	}
	fn := progFn(8, consts,
		bytecode.EncBC(bytecode.OpClosure, 0, 0), // r0 = body
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(1)), // create
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		bytecode.Enc(bytecode.OpCall, 0, 2, 1), // r2 = Thread.create(body)
		bytecode.EncBC(bytecode.OpLdReg, 0, 2), // r0 = t
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(2)), // resume
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		ldint(5, 10),
		bytecode.Enc(bytecode.OpCall, 0, 2, 2), // r2 = resume(t, 10) -> 11
		bytecode.EncBC(bytecode.OpLdReg, 1, 2), // r1 = 11
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(2)),
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		ldint(5, 100),
		bytecode.Enc(bytecode.OpCall, 0, 2, 2), // r2 = resume(t, 100) -> 100
		bytecode.Enc(bytecode.OpAdd, 0, 1, 2),  // r0 = 111
		ret(0),
	)
	fn.Funcs = []*bytecode.Function{threadBody()}
	res := runProg(t, h, fn)
	if res.Num() != 111 {
		t.Errorf("got %s, wanted 111", res)
	}
}

func TestThreadStateAfterTermination(t *testing.T) {
	// The first resume runs the body to completion and terminates the
	// thread; a second resume is a TypeError.
	h := newTestHeap()
	body := &bytecode.Function{
		Name:  "once",
		NRegs: 1,
		Code:  []bytecode.Instr{ldint(0, 1), ret(0)},
	}
	clos := h.NewClosure(body, h.GlobalEnv(), h.GlobalEnv())
	tv := h.NewThread("worker", object.ToValue(clos))
	h.Global().Define("t", tv, object.FlagsWEC)

	rt := threadFromValue(tv)
	if rt.State() != ThreadInactive {
		t.Fatalf("fresh thread state %d, wanted inactive", rt.State())
	}

	consts := []value.Value{
		value.String("Thread"),
		value.String("resume"),
		value.String("t"),
	}
	resumeProg := progFn(4, consts,
		bytecode.EncBC(bytecode.OpGetVar, 0, 0),
		bytecode.Enc(bytecode.OpCSProp, 0, 0, k(1)),
		bytecode.EncBC(bytecode.OpGetVar, 2, 2),
		ldint(3, 0),
		bytecode.Enc(bytecode.OpCall, 0, 0, 2),
		ret(0),
	)

	res := runProg(t, h, resumeProg)
	if res.Num() != 1 {
		t.Errorf("got %s, wanted 1", res)
	}
	if rt.State() != ThreadTerminated {
		t.Errorf("state %d, wanted terminated", rt.State())
	}

	err := runProgErr(t, h, resumeProg)
	if err == nil {
		t.Fatalf("expected TypeError resuming a terminated thread")
	}
}

func TestCoroutineErrorPropagatesToResumer(t *testing.T) {
	// An uncaught throw inside the coroutine terminates it and
	// rethrows the same value at the resume call site.
	h := newTestHeap()
	body := &bytecode.Function{
		Name:   "bad",
		NRegs:  1,
		Consts: []value.Value{value.String("inner-error")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpLdConst, 0, 0),
			bytecode.EncExtra(bytecode.ExThrow, 0, 0),
		},
	}
	consts := []value.Value{
		value.String("Thread"),
		value.String("create"),
		value.String("resume"),
	}
	fn := progFn(8, consts,
		bytecode.EncBC(bytecode.OpClosure, 0, 0),
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(1)),
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		bytecode.Enc(bytecode.OpCall, 0, 2, 1), // r2 = create(body)
		bytecode.EncBC(bytecode.OpLdReg, 0, 2),
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(2)),
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		ldint(5, 0),
		bytecode.Enc(bytecode.OpCall, 0, 2, 2), // resume(t, 0) -> throws
		retUndef(),
	)
	fn.Funcs = []*bytecode.Function{body}
	err := runProgErr(t, h, fn)
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("expected ThrownError, got %v", err)
	}
	if !te.Value.IsString() || te.Value.Str() != "inner-error" {
		t.Errorf("got %s, wanted inner-error", te.Value)
	}
}

func TestCoroutineErrorCaughtByResumer(t *testing.T) {
	// The redirected throw follows normal catch unwinding in the
	// resumer.
	h := newTestHeap()
	body := &bytecode.Function{
		Name:   "bad",
		NRegs:  1,
		Consts: []value.Value{value.String("oops")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpLdConst, 0, 0),
			bytecode.EncExtra(bytecode.ExThrow, 0, 0),
		},
	}
	consts := []value.Value{
		value.String("Thread"),
		value.String("create"),
		value.String("resume"),
		value.String("e"),
	}
	fn := progFn(8, consts,
		bytecode.EncBC(bytecode.OpClosure, 0, 0), // 0
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),  // 1
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(1)), // 2
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),      // 3
		bytecode.Enc(bytecode.OpCall, 0, 2, 1),      // 4: r2 = create(body)
		bytecode.EncBC(bytecode.OpLdReg, 0, 2),      // 5: r0 = t
		bytecode.Enc(bytecode.OpTryCatch, tryCatchFlags(true, false, true), 1, 3), // 6: scratch r1/r2, var e
		jump(7, 13),  // 7: catch slot
		jump(8, 16),  // 8: end slot
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),     // 9: try body
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(2)), // 10
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),      // 11
		bytecode.Enc(bytecode.OpCall, 0, 2, 1),      // 12: resume(t) -> throws; nargs=1 (thread only)
		bytecode.EncBC(bytecode.OpGetVar, 3, 3),     // 13: catch: r3 = e
		bytecode.EncExtra(bytecode.ExEndCatch, 0, 0), // 14
		retUndef(), // 15
		ret(3),     // 16
	)
	fn.Funcs = []*bytecode.Function{body}
	res := runProg(t, h, fn)
	if !res.IsString() || res.Str() != "oops" {
		t.Errorf("got %s, wanted oops", res)
	}
}

func TestYieldFromEntryThreadRejected(t *testing.T) {
	h := newTestHeap()
	consts := []value.Value{value.String("Thread"), value.String("yield")}
	err := runProgErr(t, h, progFn(5, consts,
		bytecode.EncBC(bytecode.OpGetVar, 0, 0),
		bytecode.Enc(bytecode.OpCSProp, 0, 0, k(1)),
		ldint(2, 1),
		bytecode.Enc(bytecode.OpCall, 0, 0, 1),
		retUndef(),
	))
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("expected ThrownError, got %v", err)
	}
	name := h.getProp(te.Value, value.String("name"))
	if name.Str() != "TypeError" {
		t.Errorf("got %s, wanted TypeError", name)
	}
}

func TestYieldBlockedByConstructor(t *testing.T) {
	// A constructor call sets preventcount, so a yield inside it is
	// rejected and the error reaches the resumer.
	h := newTestHeap()
	ctor := &bytecode.Function{
		Name:   "Y",
		NRegs:  5,
		Consts: []value.Value{value.String("Thread"), value.String("yield")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpGetVar, 0, 0),
			bytecode.Enc(bytecode.OpCSProp, 0, 0, k(1)),
			ldint(2, 1),
			bytecode.Enc(bytecode.OpCall, 0, 0, 1),
			retUndef(),
		},
	}
	body := &bytecode.Function{
		Name:  "runner",
		NRegs: 2,
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpClosure, 0, 0),
			bytecode.Enc(bytecode.OpNew, 0, 0, 0),
			retUndef(),
		},
		Funcs: []*bytecode.Function{ctor},
	}
	consts := []value.Value{
		value.String("Thread"),
		value.String("create"),
		value.String("resume"),
	}
	fn := progFn(8, consts,
		bytecode.EncBC(bytecode.OpClosure, 0, 0),
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(1)),
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		bytecode.Enc(bytecode.OpCall, 0, 2, 1),
		bytecode.EncBC(bytecode.OpLdReg, 0, 2),
		bytecode.EncBC(bytecode.OpGetVar, 2, 0),
		bytecode.Enc(bytecode.OpCSProp, 2, 2, k(2)),
		bytecode.EncBC(bytecode.OpLdReg, 4, 0),
		bytecode.Enc(bytecode.OpCall, 0, 2, 1), // resume(t) -> TypeError
		retUndef(),
	)
	fn.Funcs = []*bytecode.Function{body}
	err := runProgErr(t, h, fn)
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("expected ThrownError, got %v", err)
	}
	name := h.getProp(te.Value, value.String("name"))
	if name.Str() != "TypeError" {
		t.Errorf("got %s, wanted TypeError", name)
	}
}

func TestResumeSelfRejected(t *testing.T) {
	// A thread resuming itself is a TypeError, redirected to the
	// resumer as an uncaught error.
	h := newTestHeap()
	body := &bytecode.Function{
		Name:   "selfish",
		NRegs:  5,
		Consts: []value.Value{value.String("Thread"), value.String("resume")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpGetVar, 1, 0),
			bytecode.Enc(bytecode.OpCSProp, 1, 1, k(1)),
			bytecode.EncBC(bytecode.OpLdReg, 3, 0), // x = this thread
			bytecode.Enc(bytecode.OpCall, 0, 1, 1),
			retUndef(),
		},
	}
	clos := h.NewClosure(body, h.GlobalEnv(), h.GlobalEnv())
	tv := h.NewThread("selfish", object.ToValue(clos))
	h.Global().Define("t", tv, object.FlagsWEC)

	consts := []value.Value{
		value.String("Thread"),
		value.String("resume"),
		value.String("t"),
	}
	err := runProgErr(t, h, progFn(4, consts,
		bytecode.EncBC(bytecode.OpGetVar, 0, 0),
		bytecode.Enc(bytecode.OpCSProp, 0, 0, k(1)),
		bytecode.EncBC(bytecode.OpGetVar, 2, 2),
		bytecode.EncBC(bytecode.OpGetVar, 3, 2), // resume value = the thread itself
		bytecode.Enc(bytecode.OpCall, 0, 0, 2),
		retUndef(),
	))
	te, ok := err.(*ThrownError)
	if !ok {
		t.Fatalf("expected ThrownError, got %v", err)
	}
	name := h.getProp(te.Value, value.String("name"))
	if name.Str() != "TypeError" {
		t.Errorf("got %s, wanted TypeError", name)
	}
}
