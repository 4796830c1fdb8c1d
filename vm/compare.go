package vm

import (
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// Comparison flags mirroring the relational opcode contracts: the
// evaluation-order flag makes left-first coercion order observable when
// coercions have side effects, and negate inverts the outcome (but an
// incomparable pair yields false regardless).
const (
	compareEvalLeftFirst = 1 << iota
	compareNegate
)

// strictEquals implements the === operator.  No side effects.  E5
// Section 11.9.6.
func strictEquals(x, y value.Value) bool {
	if x.Kind() != y.Kind() {
		return false
	}
	switch x.Kind() {
	case value.KindUndefined, value.KindNull:
		return true
	case value.KindNumber:
		// NaN !== NaN; +0 === -0.
		return x.Num() == y.Num()
	case value.KindBoolean:
		return x.Bool() == y.Bool()
	case value.KindString:
		return x.Str() == y.Str()
	case value.KindObject, value.KindBuffer:
		return x.Ref() == y.Ref()
	}
	return false
}

// equals implements the == operator.  May run user code through
// ToPrimitive/ToNumber.  E5 Section 11.9.3.
func (h *Heap) equals(x, y value.Value) bool {
	if x.Kind() == y.Kind() {
		return strictEquals(x, y)
	}
	switch {
	case x.IsNullOrUndefined() && y.IsNullOrUndefined():
		return true
	case x.IsNumber() && y.IsString():
		return x.Num() == stringToNumber(y.Str())
	case x.IsString() && y.IsNumber():
		return stringToNumber(x.Str()) == y.Num()
	case x.IsBoolean():
		return h.equals(value.Number(h.ToNumber(x)), y)
	case y.IsBoolean():
		return h.equals(x, value.Number(h.ToNumber(y)))
	case (x.IsNumber() || x.IsString()) && y.IsObject():
		return h.equals(x, h.ToPrimitive(y, HintNone))
	case x.IsObject() && (y.IsNumber() || y.IsString()):
		return h.equals(h.ToPrimitive(x, HintNone), y)
	case x.IsBuffer() && y.IsString():
		return string(x.Buf().Data) == y.Str()
	case x.IsString() && y.IsBuffer():
		return x.Str() == string(y.Buf().Data)
	}
	return false
}

// compare implements the abstract relational comparison used by
// LT/LE/GT/GE.  The flags select coercion order and negation; an
// undefined result (NaN on either side) is false regardless of the
// negate flag.  E5 Section 11.8.5.
func (h *Heap) compare(x, y value.Value, flags int) bool {
	var px, py value.Value
	if flags&compareEvalLeftFirst != 0 {
		px = h.ToPrimitive(x, HintNumber)
		py = h.ToPrimitive(y, HintNumber)
	} else {
		py = h.ToPrimitive(y, HintNumber)
		px = h.ToPrimitive(x, HintNumber)
	}

	if px.IsString() && py.IsString() {
		rc := px.Str() < py.Str()
		if flags&compareNegate != 0 {
			rc = !rc
		}
		return rc
	}

	d1 := h.ToNumber(px)
	d2 := h.ToNumber(py)
	if d1 != d1 || d2 != d2 {
		return false
	}
	rc := d1 < d2
	if flags&compareNegate != 0 {
		rc = !rc
	}
	return rc
}

// instanceofOp implements the instanceof operator.  E5 Section 11.8.6.
func (h *Heap) instanceofOp(x, y value.Value) bool {
	if !isCallable(y) || !y.IsObject() {
		h.Throw(h.makeError("TypeError", "invalid instanceof rand"))
	}
	fn := object.FromValue(y)
	for {
		bf, ok := fn.Data.(*boundFunc)
		if !ok {
			break
		}
		if !bf.target.IsObject() {
			h.Throw(h.makeError("TypeError", "invalid instanceof rand"))
		}
		fn = object.FromValue(bf.target)
	}
	p, _, ok := fn.Lookup("prototype")
	if !ok || !p.Value.IsObject() {
		h.Throw(h.makeError("TypeError", "invalid 'prototype' for instanceof"))
	}
	proto := object.FromValue(p.Value)
	if !x.IsObject() {
		return false
	}
	for cur := object.FromValue(x).Proto; cur != nil; cur = cur.Proto {
		if cur == proto {
			return true
		}
	}
	return false
}

// inOp implements the in operator.  E5 Section 11.8.7.
func (h *Heap) inOp(x, y value.Value) bool {
	if !y.IsObject() {
		h.Throw(h.makeError("TypeError", "invalid 'in' rand"))
	}
	key := h.ToString(x)
	return object.FromValue(y).HasProperty(key)
}

// isCanonicalNumber reports that a register-visible number obeys the
// NaN normalization invariant (test hook).
func isCanonicalNumber(v value.Value) bool {
	if !v.IsNumber() {
		return false
	}
	d := v.Num()
	if d == d {
		return true
	}
	return value.IsCanonicalNaN(d)
}
