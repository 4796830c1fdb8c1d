package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// ThrownError is the Go error the embedder receives when a script
// value escapes the executor uncaught.
type ThrownError struct {
	Value value.Value
}

func (e *ThrownError) Error() string {
	if e.Value.IsObject() {
		o := object.FromValue(e.Value)
		name := "Error"
		msg := ""
		if p, _, ok := o.Lookup("name"); ok && p.Value.IsString() {
			name = p.Value.Str()
		}
		if p, _, ok := o.Lookup("message"); ok && p.Value.IsString() {
			msg = p.Value.Str()
		}
		if msg == "" {
			return name
		}
		return fmt.Sprintf("%s: %s", name, msg)
	}
	return fmt.Sprintf("uncaught: %s", e.Value)
}

// makeError builds an error object.  Location information is attached
// at construction, not at throw time, so identity is preserved across
// re-throws.
func (h *Heap) makeError(name, msg string) value.Value {
	o := object.New(object.ClassError, h.errorProto)
	o.Define("name", value.String(name), object.FlagsWEC)
	o.Define("message", value.String(msg), object.FlagsWEC)
	if thr := h.curThread; thr != nil && len(thr.callstack) > 0 {
		act := thr.topAct()
		if act.Template != nil {
			o.Define("fileName", value.String(act.Template.Filename), object.FlagWritable|object.FlagConfigurable)
			o.Define("lineNumber", value.Number(float64(act.Template.LineAt(act.PC))), object.FlagWritable|object.FlagConfigurable)
		}
	}
	return object.ToValue(o)
}

func (h *Heap) throwTypeError(msg string)      { h.Throw(h.makeError("TypeError", msg)) }
func (h *Heap) throwRangeError(msg string)     { h.Throw(h.makeError("RangeError", msg)) }
func (h *Heap) throwReferenceError(msg string) { h.Throw(h.makeError("ReferenceError", msg)) }

// internalError raises an InternalError for executor invariant
// violations (invalid opcode, malformed indirect operand, enumerator
// misuse).  These follow the normal throw path so they never bypass
// catch/finally unwinding.
func (h *Heap) internalError(msg string) {
	h.Throw(h.makeError("InternalError", msg))
}

// internalErrorf is the formatted variant, used where operand context
// helps diagnosis.
func (h *Heap) internalErrorf(format string, args ...interface{}) {
	h.internalError(errors.Errorf(format, args...).Error())
}
