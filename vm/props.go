package vm

import (
	"strconv"

	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// getProp implements property read on an arbitrary base value,
// delegating object internals to the object model and calling getters
// through the normal call path.  May run user code.
func (h *Heap) getProp(base, key value.Value) value.Value {
	if base.IsNullOrUndefined() {
		h.throwTypeError("cannot read property of " + Typeof(base))
	}
	k := h.ToString(key)

	switch base.Kind() {
	case value.KindObject:
		o := object.FromValue(base)
		p, _, ok := o.Lookup(k)
		if !ok {
			return value.Undefined()
		}
		if p.IsAccessor() {
			if p.Get == nil {
				return value.Undefined()
			}
			return h.callFunction(object.ToValue(p.Get), base, nil)
		}
		return p.Value
	case value.KindString:
		s := base.Str()
		if k == "length" {
			return value.Number(float64(len(s)))
		}
		if idx, err := strconv.Atoi(k); err == nil && idx >= 0 && idx < len(s) {
			return value.String(s[idx : idx+1])
		}
		return value.Undefined()
	case value.KindBuffer:
		data := base.Buf().Data
		if k == "length" {
			return value.Number(float64(len(data)))
		}
		if idx, err := strconv.Atoi(k); err == nil && idx >= 0 && idx < len(data) {
			return value.Number(float64(data[idx]))
		}
		return value.Undefined()
	}
	return value.Undefined()
}

// putProp implements property write.  Setter properties are resolved
// here and invoked through the call path; failed writes throw only in
// strict code.
func (h *Heap) putProp(base, key, val value.Value, strict bool) {
	if base.IsNullOrUndefined() {
		h.throwTypeError("cannot write property of " + Typeof(base))
	}
	if !base.IsObject() {
		if strict {
			h.throwTypeError("cannot write property of primitive")
		}
		return
	}
	k := h.ToString(key)
	o := object.FromValue(base)
	if p, _, ok := o.Lookup(k); ok && p.IsAccessor() {
		if p.Set == nil {
			if strict {
				h.throwTypeError("setter undefined for " + k)
			}
			return
		}
		h.callFunction(object.ToValue(p.Set), base, []value.Value{val})
		return
	}
	if !o.Put(k, val) && strict {
		h.throwTypeError("write rejected for " + k)
	}
}

// delProp implements property delete.
func (h *Heap) delProp(base, key value.Value, strict bool) bool {
	if base.IsNullOrUndefined() {
		h.throwTypeError("cannot delete property of " + Typeof(base))
	}
	if !base.IsObject() {
		return true
	}
	k := h.ToString(key)
	rc := object.FromValue(base).Delete(k)
	if !rc && strict {
		h.throwTypeError("delete rejected for " + k)
	}
	return rc
}

// activationEnv returns the lexical environment of an activation,
// running the delayed initialization if needed.  The activation is
// re-resolved through its index because the init may allocate.
func (h *Heap) activationEnv(t *Thread, actIdx int) object.Env {
	if t.callstack[actIdx].LexEnv == nil {
		h.initActivationEnv(t, actIdx)
	}
	return t.callstack[actIdx].LexEnv
}

// getVar resolves an identifier through the activation's environment
// chain.  Returns the value and the call-site 'this' binding (only
// non-undefined when resolved via a this-providing object record).
func (h *Heap) getVar(t *Thread, actIdx int, name string, throw bool) (value.Value, value.Value, bool) {
	env := h.activationEnv(t, actIdx)
	ref, ok := object.ResolveIdentifier(env, name)
	if !ok {
		if throw {
			h.throwReferenceError("identifier '" + name + "' undefined")
		}
		return value.Undefined(), value.Undefined(), false
	}
	if ref.Decl != nil {
		b, _ := ref.Decl.Binding(name)
		return b.Value, ref.This, true
	}
	return h.getProp(object.ToValue(ref.Obj), value.String(name)), ref.This, true
}

// putVar writes an identifier.  Unresolvable identifiers throw in
// strict code and create a global binding otherwise.
func (h *Heap) putVar(t *Thread, actIdx int, name string, val value.Value, strict bool) {
	env := h.activationEnv(t, actIdx)
	ref, ok := object.ResolveIdentifier(env, name)
	if !ok {
		if strict {
			h.throwReferenceError("identifier '" + name + "' undefined")
		}
		h.globalObject.Define(name, val, object.FlagsWEC)
		return
	}
	if ref.Decl != nil {
		b, _ := ref.Decl.Binding(name)
		if !b.Set(val) && strict {
			h.throwTypeError("assignment to non-writable '" + name + "'")
		}
		return
	}
	h.putProp(object.ToValue(ref.Obj), value.String(name), val, strict)
}

// declVar declares an identifier in the activation's variable
// environment.  When the binding already exists the value (if any) is
// written through the normal identifier write path instead.
func (h *Heap) declVar(t *Thread, actIdx int, name string, val value.Value, writable, deletable, hasValue, strict bool) {
	if t.callstack[actIdx].VarEnv == nil {
		h.initActivationEnv(t, actIdx)
	}
	env := t.callstack[actIdx].VarEnv
	if object.DeclareVar(env, name, val, writable, deletable) && hasValue {
		h.putVar(t, actIdx, name, val, strict)
	}
}

// deleteVar implements the delete operator on an identifier.
func (h *Heap) deleteVar(t *Thread, actIdx int, name string) bool {
	env := h.activationEnv(t, actIdx)
	return object.DeleteIdentifier(env, name)
}
