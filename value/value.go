// Package value implements the tagged value representation used for all
// registers, constants and scratch slots in the execution core.
package value

import (
	"fmt"
	"math"
)

// Value kinds. UnusedUndefined is a sentinel distinct from the script
// visible 'undefined'; it marks slots that hold no live value (e.g. the
// wiped longjmp payload slots).
const (
	KindUnused = iota
	KindUndefined
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindObject
	KindLightFunc
	KindBuffer
)

var kindNames = map[int]string{
	KindUnused:    "unused",
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindObject:    "object",
	KindLightFunc: "lightfunc",
	KindBuffer:    "buffer",
}

// The single canonical NaN bit pattern.  Every number stored into a
// Value is normalized so that all NaNs share this representation; the
// tagged layout depends on it (spec-wise: equality and hashing of
// values must not see multiple NaN payloads).
const canonicalNaNBits = 0x7ff8000000000000

// NormalizeNaN maps every NaN to the canonical bit pattern and leaves
// all other numbers untouched.
func NormalizeNaN(f float64) float64 {
	if f != f {
		return math.Float64frombits(canonicalNaNBits)
	}
	return f
}

// IsCanonicalNaN reports whether f is bit-identical to the canonical NaN.
func IsCanonicalNaN(f float64) bool {
	return math.Float64bits(f) == canonicalNaNBits
}

// RefCounted is implemented by heap-allocated payloads (objects,
// buffers).  Release may run a finalizer with arbitrary side effects;
// callers must not trust raw stack addresses across a Release call.
type RefCounted interface {
	Acquire()
	Release()
}

// RefCount is the embeddable reference count header.  The runtime is
// single OS threaded (coroutines are cooperative), so no atomics.
type RefCount struct {
	n         int32
	Finalizer func()
}

func (r *RefCount) Acquire() { r.n++ }

func (r *RefCount) Release() {
	r.n--
	if r.n <= 0 && r.Finalizer != nil {
		f := r.Finalizer
		r.Finalizer = nil
		f()
	}
}

// Refs returns the current reference count (test hook).
func (r *RefCount) Refs() int32 { return r.n }

// Buffer is a plain byte buffer value payload.
type Buffer struct {
	RefCount
	Data []byte
}

// Value is the tagged variant.  The zero value is the unused sentinel.
//
// Invariants: num holds the canonical NaN for every NaN number; for
// booleans num is strictly 0 or 1; ref is non-nil exactly for the
// object and buffer kinds, fn is non-nil exactly for lightfuncs.
type Value struct {
	kind int
	num  float64
	str  string
	ref  RefCounted
	fn   interface{}
}

// Unused returns the unused-undefined sentinel.
func Unused() Value { return Value{} }

// Undefined returns the script-visible undefined value.
func Undefined() Value { return Value{kind: KindUndefined} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Boolean returns a boolean value.
func Boolean(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.num = 1
	}
	return v
}

// Number returns a number value with NaN normalization applied.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: NormalizeNaN(f)}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Object wraps a refcounted heap object.  The concrete object type
// lives outside this package; the core only needs acquire/release.
func Object(o RefCounted) Value { return Value{kind: KindObject, ref: o} }

// NewBuffer allocates a buffer value of the given size.
func NewBuffer(data []byte) Value {
	return Value{kind: KindBuffer, ref: &Buffer{Data: data}}
}

// LightFunc wraps a callable that has no object identity.  The payload
// type is owned by the vm package.
func LightFunc(fn interface{}) Value { return Value{kind: KindLightFunc, fn: fn} }

func (v Value) Kind() int         { return v.kind }
func (v Value) IsUnused() bool    { return v.kind == KindUnused }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsBoolean() bool   { return v.kind == KindBoolean }
func (v Value) IsNumber() bool    { return v.kind == KindNumber }
func (v Value) IsString() bool    { return v.kind == KindString }
func (v Value) IsObject() bool    { return v.kind == KindObject }
func (v Value) IsLightFunc() bool { return v.kind == KindLightFunc }
func (v Value) IsBuffer() bool    { return v.kind == KindBuffer }

// IsNullOrUndefined reports null or undefined (not the unused sentinel).
func (v Value) IsNullOrUndefined() bool {
	return v.kind == KindNull || v.kind == KindUndefined
}

// Num returns the number payload.  Valid only for number values.
func (v Value) Num() float64 { return v.num }

// Bool returns the boolean payload.  Valid only for boolean values.
func (v Value) Bool() bool { return v.num != 0 }

// Str returns the string payload.  Valid only for string values.
func (v Value) Str() string { return v.str }

// Ref returns the refcounted payload for object and buffer values.
func (v Value) Ref() RefCounted { return v.ref }

// Buf returns the buffer payload.  Valid only for buffer values.
func (v Value) Buf() *Buffer { return v.ref.(*Buffer) }

// Light returns the lightfunc payload.
func (v Value) Light() interface{} { return v.fn }

// IsHeapAllocated reports whether the value participates in ownership.
func (v Value) IsHeapAllocated() bool { return v.ref != nil }

// Acquire bumps the refcount of a heap-allocated payload; a no-op for
// plain values.
func (v Value) Acquire() {
	if v.ref != nil {
		v.ref.Acquire()
	}
}

// Release drops the refcount of a heap-allocated payload.  May run
// finalizers with arbitrary side effects.
func (v Value) Release() {
	if v.ref != nil {
		v.ref.Release()
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%v", v.num)
	case KindBoolean:
		return fmt.Sprintf("%v", v.num != 0)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindObject:
		return fmt.Sprintf("object<%p>", v.ref)
	case KindBuffer:
		return fmt.Sprintf("buffer[%d]", len(v.Buf().Data))
	case KindLightFunc:
		return "lightfunc"
	}
	return kindNames[v.kind]
}

// SameValue is the identity comparison used by tests: kinds equal and
// payloads bit-identical (NaN equals NaN because of normalization).
func SameValue(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumber:
		return math.Float64bits(a.num) == math.Float64bits(b.num)
	case KindBoolean:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindObject, KindBuffer:
		return a.ref == b.ref
	}
	return true
}
