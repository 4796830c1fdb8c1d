package vm

import (
	log "github.com/sirupsen/logrus"

	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// Transfer handler outcomes.
const (
	outcomeRestart  = iota // state updated, restart dispatch
	outcomeFinished        // executor finished with a return value on top
	outcomeRethrow         // re-raise outward with the longjmp state intact
)

// handleCatchOrFinally converts an in-flight transfer into execution of
// a catch or finally part: the pending value and transfer kind are
// written into the catcher's two scratch slots, the stacks unwind to
// the catcher's frame (the catcher itself is kept), the value stack is
// reconfigured, and the PC moves to the matching jump slot.  A catch
// part with a catch binding gets a fresh declarative environment
// holding the caught value.
func (h *Heap) handleCatchOrFinally(t *Thread, catIdx int, isFinally bool) {
	// Scratch slots first; these writes may run finalizers, so all
	// catcher state is re-read through the index afterwards.
	t.writeSlot(t.catchstack[catIdx].IdxBase, h.lj.Value1)
	t.writeSlot(t.catchstack[catIdx].IdxBase+1, value.Number(float64(h.lj.Type)))

	t.catchstackUnwind(catIdx + 1)
	t.callstackUnwind(t.catchstack[catIdx].CallstackIndex + 1)

	actIdx := len(t.callstack) - 1
	act := &t.callstack[actIdx]
	t.valstackBottom = act.IdxBottom
	t.setTop(act.Template.NRegs)

	pc := t.catchstack[catIdx].PCBase
	if isFinally {
		pc++
	}
	t.callstack[actIdx].PC = pc

	if !isFinally && t.catchstack[catIdx].Flags&CatCatchBindingEnabled != 0 {
		h.initActivationEnv(t, actIdx)
		act = &t.callstack[actIdx]
		env := object.NewDeclEnv(act.LexEnv)
		// Writable, not deletable: step 4 of the catch production.
		env.Declare(t.catchstack[catIdx].VarName, h.lj.Value1, true, false)
		old := act.LexEnv
		act.LexEnv = env
		env.Acquire()
		if old != nil {
			old.Release()
		}
		t.catchstack[catIdx].Flags |= CatLexEnvActive
	}

	if isFinally {
		t.catchstack[catIdx].Flags &^= CatFinallyEnabled
	} else {
		t.catchstack[catIdx].Flags &^= CatCatchEnabled
	}
}

// handleLabel lands a break/continue on its label catcher: the PC moves
// to jump slot 0 (break) or 1 (continue) and higher catchers unwind.
// The label catcher itself stays.
func (h *Heap) handleLabel(t *Thread, catIdx int) {
	pc := t.catchstack[catIdx].PCBase
	if h.lj.Type == LJContinue {
		pc++
	}
	t.topAct().PC = pc
	t.catchstackUnwind(catIdx + 1)
}

// deliverToResumer writes v at the resume/yield call site of the waiting
// thread: the compiled activation below the built-in's native frame
// receives v at its idx_retval, the native frame unwinds, and the value
// stack reconfigures for dispatch.
func (h *Heap) deliverToResumer(waiter *Thread, v value.Value) {
	actIdx := len(waiter.callstack) - 2
	waiter.writeSlot(waiter.callstack[actIdx].IdxRetval, v)
	waiter.callstackUnwind(actIdx + 1)
	waiter.reconfigValstack(actIdx, 1)
}

// handleTransfer consumes the longjmp state after the dispatch loop
// trapped.  It walks catch stacks, unwinds frames and switches threads
// until it can restart dispatch, finish the executor, or decide the
// transfer must re-raise outward.  entry/entryDepth define the
// executor's boundary.
func (h *Heap) handleTransfer(entry *Thread, entryDepth int) int {
	thr := h.curThread

	for {
		if log.IsLevelEnabled(log.DebugLevel) {
			log.WithFields(log.Fields{
				"type":    ljNames[h.lj.Type],
				"thread":  thr.name,
				"iserror": h.lj.IsError,
			}).Debug("handling transfer")
		}

		switch h.lj.Type {

		case LJResume:
			// value1 is the resume value, value2 the resumee.
			rt := threadFromValue(h.lj.Value2)
			if rt == nil {
				h.internalError("resume target is not a thread")
			}

			if h.lj.IsError {
				// Throw the error inside the resumee; its callstack
				// may be empty (never-resumed thread), which the
				// throw path handles as an immediate termination.
				rt.resumer = thr
				rt.state = ThreadRunning
				thr.state = ThreadResumed
				h.switchThread(rt)
				thr = rt
				h.lj.Type = LJThrow
				continue
			}

			if rt.state == ThreadYielded {
				h.deliverToResumer(rt, h.lj.Value1)
				rt.resumer = thr
				rt.state = ThreadRunning
				thr.state = ThreadResumed
				h.switchThread(rt)
				h.wipeLj()
				return outcomeRestart
			}

			// Inactive: set up the initial call with the resume value
			// as the single argument.
			rt.push(rt.initialFunc)
			rt.push(value.Undefined())
			rt.push(h.lj.Value1)
			if !h.ecmaCallSetup(rt, 0, 1, callFlagIsResume) {
				h.internalError("thread body is not a compiled function")
			}
			rt.resumer = thr
			rt.state = ThreadRunning
			thr.state = ThreadResumed
			h.switchThread(rt)
			h.wipeLj()
			return outcomeRestart

		case LJYield:
			resumer := thr.resumer
			if resumer == nil {
				h.internalError("yield with no resumer")
			}

			if h.lj.IsError {
				thr.state = ThreadYielded
				thr.resumer = nil
				resumer.state = ThreadRunning
				h.switchThread(resumer)
				thr = resumer
				h.lj.Type = LJThrow
				continue
			}

			h.deliverToResumer(resumer, h.lj.Value1)
			thr.state = ThreadYielded
			thr.resumer = nil
			resumer.state = ThreadRunning
			h.switchThread(resumer)
			h.wipeLj()
			return outcomeRestart

		case LJReturn:
			curIdx := len(thr.callstack) - 1
			i := len(thr.catchstack) - 1
			for ; i >= 0; i-- {
				cat := &thr.catchstack[i]
				if cat.CallstackIndex != curIdx {
					break
				}
				if cat.Type == CatTCF && cat.Flags&CatFinallyEnabled != 0 {
					h.handleCatchOrFinally(thr, i, true)
					h.wipeLj()
					return outcomeRestart
				}
			}
			// i is now below the returning frame's catchers.

			if thr == entry && len(thr.callstack) == entryDepth {
				thr.push(h.lj.Value1)
				h.wipeLj()
				return outcomeFinished
			}

			if len(thr.callstack) >= 2 {
				// The caller is necessarily a compiled function;
				// anything else would have matched the entry check.
				caller := len(thr.callstack) - 2
				thr.writeSlot(thr.callstack[caller].IdxRetval, h.lj.Value1)
				thr.catchstackUnwind(i + 1)
				thr.callstackUnwind(len(thr.callstack) - 1)
				thr.reconfigValstack(len(thr.callstack)-1, 1)
				h.wipeLj()
				return outcomeRestart
			}

			// No caller in this thread: the thread terminates and the
			// return value is delivered as if resume() returned.
			resumer := thr.resumer
			if resumer == nil {
				h.internalError("return with no caller and no resumer")
			}
			h.deliverToResumer(resumer, h.lj.Value1)
			thr.terminate()
			thr.resumer = nil
			resumer.state = ThreadRunning
			h.switchThread(resumer)
			h.wipeLj()
			return outcomeRestart

		case LJBreak, LJContinue:
			label := int(h.lj.Value1.Num())
			curIdx := len(thr.callstack) - 1
			for i := len(thr.catchstack) - 1; i >= 0; i-- {
				cat := &thr.catchstack[i]
				if cat.CallstackIndex != curIdx {
					break
				}
				if cat.Type == CatTCF && cat.Flags&CatFinallyEnabled != 0 {
					h.handleCatchOrFinally(thr, i, true)
					h.wipeLj()
					return outcomeRestart
				}
				if cat.Type == CatLabel && cat.Label == label {
					h.handleLabel(thr, i)
					h.wipeLj()
					return outcomeRestart
				}
			}
			// The compiler guarantees a label site; not finding one is
			// an executor bug.
			h.internalErrorf("break/continue label %d not found", label)

		case LJThrow:
			entryCallstackIndex := entryDepth - 1
			caught := false
			for i := len(thr.catchstack) - 1; i >= 0; i-- {
				cat := &thr.catchstack[i]
				if thr == entry && cat.CallstackIndex < entryCallstackIndex {
					break
				}
				if cat.Flags&CatCatchEnabled != 0 {
					h.handleCatchOrFinally(thr, i, false)
					caught = true
					break
				}
				if cat.Flags&CatFinallyEnabled != 0 {
					h.handleCatchOrFinally(thr, i, true)
					caught = true
					break
				}
			}
			if caught {
				h.wipeLj()
				return outcomeRestart
			}

			if thr == entry {
				// Uncaught at the executor boundary: leave the
				// longjmp state intact for the outer catchpoint.
				return outcomeRethrow
			}

			// Uncaught in a coroutine: the thread dies and the error
			// is rethrown in the resumer.  This may cascade.
			resumer := thr.resumer
			if resumer == nil {
				h.internalError("uncaught error in thread with no resumer")
			}
			thr.terminate()
			thr.resumer = nil
			resumer.state = ThreadRunning
			h.switchThread(resumer)
			thr = resumer
			continue

		case LJNormal:
			h.internalError("normal longjmp surfaced in transfer handler")

		default:
			h.internalErrorf("unknown longjmp type %d", h.lj.Type)
		}
	}
}

// threadFromValue unwraps a script-visible thread object.
func threadFromValue(v value.Value) *Thread {
	o := object.FromValue(v)
	if o == nil {
		return nil
	}
	t, _ := o.Data.(*Thread)
	return t
}
