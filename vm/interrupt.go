package vm

import (
	log "github.com/sirupsen/logrus"
)

// executorInterrupt runs when a thread's interrupt countdown trips.
// The handler returns the next init value: how many instructions run
// before the next interrupt.  The stored counter is one less than the
// init value, so returning 1 executes exactly one instruction and 0
// interrupts again before the very next one.  Errors thrown by the
// handler follow the normal throw path.
func (h *Heap) executorInterrupt(t *Thread) {
	ctr := h.cfg.InterruptInit
	if h.InterruptHandler != nil {
		ctr = h.InterruptHandler(h, t)
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithFields(log.Fields{"thread": t.name, "next": ctr}).Trace("executor interrupt")
	}
	h.interruptInit = ctr
	h.interruptCounter = ctr - 1
	t.interruptCounter = ctr - 1
}

// defaultInterruptHandler keeps a cumulative step count and enforces
// the optional step budget with a catchable RangeError.
func defaultInterruptHandler(h *Heap, t *Thread) int {
	h.stepCount += h.interruptInit
	if h.cfg.StepLimit > 0 && h.stepCount >= h.cfg.StepLimit {
		// The budget restarts when the error is raised, so a catch
		// clause gets a fresh window instead of an immediate re-trip.
		h.stepCount = 0
		h.throwRangeError("execution step limit")
	}
	return h.cfg.InterruptInit
}

// StepCount returns the cumulative executed-instruction estimate kept
// by the default interrupt handler.
func (h *Heap) StepCount() int { return h.stepCount }

// ResetStepCount restarts the step budget.
func (h *Heap) ResetStepCount() { h.stepCount = 0 }
