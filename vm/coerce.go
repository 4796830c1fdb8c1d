package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
)

// ToPrimitive hints.
const (
	HintNone = iota
	HintString
	HintNumber
)

// ToBoolean has no side effects on any input.  E5 Section 9.2.
func ToBoolean(v value.Value) bool {
	switch v.Kind() {
	case value.KindBoolean:
		return v.Bool()
	case value.KindNumber:
		n := v.Num()
		return n != 0 && n == n
	case value.KindString:
		return v.Str() != ""
	case value.KindObject, value.KindLightFunc:
		return true
	case value.KindBuffer:
		return len(v.Buf().Data) > 0
	}
	return false
}

// ToNumber may call user code (via ToPrimitive) for object inputs.
// E5 Section 9.3.
func (h *Heap) ToNumber(v value.Value) float64 {
	switch v.Kind() {
	case value.KindNumber:
		return v.Num()
	case value.KindBoolean:
		if v.Bool() {
			return 1
		}
		return 0
	case value.KindNull:
		return 0
	case value.KindUndefined:
		return math.NaN()
	case value.KindString:
		return stringToNumber(v.Str())
	case value.KindBuffer:
		return stringToNumber(string(v.Buf().Data))
	case value.KindLightFunc:
		return math.NaN()
	case value.KindObject:
		prim := h.ToPrimitive(v, HintNumber)
		return h.ToNumber(prim)
	}
	return math.NaN()
}

// ToInt32 follows E5 Section 9.5: modulo 2^32, wrapped into the signed
// range.  Idempotent: ToInt32(ToInt32(x)) == ToInt32(x).
func (h *Heap) ToInt32(v value.Value) int32 {
	return int32(h.ToUint32(v))
}

// ToUint32 follows E5 Section 9.6.
func (h *Heap) ToUint32(v value.Value) uint32 {
	d := h.ToNumber(v)
	if d != d || math.IsInf(d, 0) {
		return 0
	}
	d = math.Trunc(d)
	d = math.Mod(d, 4294967296.0)
	if d < 0 {
		d += 4294967296.0
	}
	return uint32(d)
}

// ToPrimitive converts objects through their valueOf/toString methods.
// Primitive inputs (including buffers) pass through.  May run user
// code with arbitrary side effects.  E5 Section 9.1 / 8.12.8.
func (h *Heap) ToPrimitive(v value.Value, hint int) value.Value {
	if !v.IsObject() {
		return v
	}
	o := object.FromValue(v)
	order := []string{"valueOf", "toString"}
	if hint == HintString {
		order = []string{"toString", "valueOf"}
	}
	for _, name := range order {
		if p, _, ok := o.Lookup(name); ok && !p.IsAccessor() && isCallable(p.Value) {
			res := h.callFunction(p.Value, v, nil)
			if !res.IsObject() {
				return res
			}
		}
	}
	// No usable conversion method: class-based defaults keep plain
	// literals usable without a full built-in library.
	if hint == HintNumber {
		return value.Number(math.NaN())
	}
	return value.String("[object " + o.ClassName() + "]")
}

// ToString may call user code for object inputs.  E5 Section 9.8.
func (h *Heap) ToString(v value.Value) string {
	switch v.Kind() {
	case value.KindUndefined:
		return "undefined"
	case value.KindNull:
		return "null"
	case value.KindBoolean:
		if v.Bool() {
			return "true"
		}
		return "false"
	case value.KindNumber:
		return NumberToString(v.Num())
	case value.KindString:
		return v.Str()
	case value.KindBuffer:
		return string(v.Buf().Data)
	case value.KindLightFunc:
		return "function lightfunc() {[lightfunc code]}"
	case value.KindObject:
		prim := h.ToPrimitive(v, HintString)
		if prim.IsObject() {
			h.Throw(h.makeError("TypeError", "cannot convert object to string"))
		}
		return h.ToString(prim)
	}
	return ""
}

// ToObject rejects values that have no object coercion here (the
// wrapper classes belong to the built-in library).
func (h *Heap) ToObject(v value.Value) *object.Object {
	if v.IsObject() {
		return object.FromValue(v)
	}
	h.Throw(h.makeError("TypeError", "cannot convert to object"))
	return nil
}

// Typeof returns the typeof operator's string for v.
func Typeof(v value.Value) string {
	switch v.Kind() {
	case value.KindUndefined, value.KindUnused:
		return "undefined"
	case value.KindNull:
		return "object"
	case value.KindBoolean:
		return "boolean"
	case value.KindNumber:
		return "number"
	case value.KindString:
		return "string"
	case value.KindBuffer:
		return "buffer"
	case value.KindLightFunc:
		return "function"
	case value.KindObject:
		if isCallable(v) {
			return "function"
		}
		return "object"
	}
	return "undefined"
}

// NumberToString renders a number the way script code observes it.
// Integral values below 1e21 in magnitude print in plain decimal
// without a fraction or exponent; other values use
// the shortest round-trip form.  (The full E5 Section 9.8.1 exponent
// rules live with the out-of-scope coercion collaborators.)
func NumberToString(d float64) string {
	if d != d {
		return "NaN"
	}
	if math.IsInf(d, 1) {
		return "Infinity"
	}
	if math.IsInf(d, -1) {
		return "-Infinity"
	}
	if d == math.Trunc(d) && math.Abs(d) < 1e21 {
		return strconv.FormatFloat(d, 'f', -1, 64)
	}
	return strconv.FormatFloat(d, 'g', -1, 64)
}

// stringToNumber implements E5 Section 9.3.1 for the forms the core
// needs: optional whitespace, optional sign, decimal or hex literal,
// Infinity; anything else is NaN, the empty string is +0.
func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	neg := false
	body := s
	if body[0] == '+' || body[0] == '-' {
		neg = body[0] == '-'
		body = body[1:]
	}
	var d float64
	switch {
	case body == "Infinity":
		d = math.Inf(1)
	case strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X"):
		if neg {
			return math.NaN()
		}
		u, err := strconv.ParseUint(body[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		d = float64(u)
	default:
		// ParseFloat is laxer than the script grammar ("inf", "nan",
		// case-insensitive infinity); those spellings are not numbers.
		lower := strings.ToLower(body)
		if lower == "inf" || lower == "infinity" || lower == "nan" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return math.NaN()
		}
		d = f
	}
	if neg {
		d = -d
	}
	return d
}
