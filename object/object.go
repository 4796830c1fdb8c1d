// Package object implements the minimal object model the execution
// core consumes: property maps with insertion order, prototype chains,
// accessor slots and the two environment record kinds.  Full
// property-descriptor semantics belong to the embedding runtime; the
// surface here is what the dispatch loop and transfer handler call.
package object

import (
	"github.com/v4xyz/duktape/value"
)

// Object classes.  The executor mostly cares about callable vs thread
// vs plain; the class also drives typeof and default string forms.
const (
	ClassObject = iota
	ClassArray
	ClassFunction
	ClassError
	ClassRegExp
	ClassThread
	ClassEnumerator
	ClassArguments
)

var classNames = map[int]string{
	ClassObject:     "Object",
	ClassArray:      "Array",
	ClassFunction:   "Function",
	ClassError:      "Error",
	ClassRegExp:     "RegExp",
	ClassThread:     "Thread",
	ClassEnumerator: "Enumerator",
	ClassArguments:  "Arguments",
}

// Property flags.
const (
	FlagWritable = 1 << iota
	FlagEnumerable
	FlagConfigurable

	// FlagsWEC is the default for literal and assignment-created props.
	FlagsWEC = FlagWritable | FlagEnumerable | FlagConfigurable
	// FlagsW is the writable-only set: writable, not configurable,
	// not enumerable.
	FlagsW = FlagWritable
)

// Property is a single named slot.  When Get or Set is non-nil the
// property is an accessor and Value is ignored.
type Property struct {
	Value value.Value
	Flags int
	Get   *Object
	Set   *Object
}

// IsAccessor reports whether the property has getter/setter slots.
func (p *Property) IsAccessor() bool { return p.Get != nil || p.Set != nil }

// Object is a heap object.  Data carries the subtype payload owned by
// the vm package (closure, native function, bound function, thread,
// enumerator state, regexp instance).
type Object struct {
	value.RefCount

	Class      int
	Proto      *Object
	Extensible bool

	props map[string]*Property
	keys  []string

	Data interface{}
}

// New allocates a plain extensible object with the given prototype.
func New(class int, proto *Object) *Object {
	return &Object{Class: class, Proto: proto, Extensible: true}
}

// ClassName returns the object's class string ("Object", "Array", ...).
func (o *Object) ClassName() string {
	if n, ok := classNames[o.Class]; ok {
		return n
	}
	return "Object"
}

// GetOwn returns the own property for key, if present.
func (o *Object) GetOwn(key string) (*Property, bool) {
	p, ok := o.props[key]
	return p, ok
}

// Lookup walks the prototype chain and returns the first property
// found together with the object holding it.
func (o *Object) Lookup(key string) (*Property, *Object, bool) {
	for cur := o; cur != nil; cur = cur.Proto {
		if p, ok := cur.props[key]; ok {
			return p, cur, true
		}
	}
	return nil, nil, false
}

// HasProperty reports whether key resolves anywhere on the chain.
func (o *Object) HasProperty(key string) bool {
	_, _, ok := o.Lookup(key)
	return ok
}

// Define creates or overwrites an own data property without consulting
// the prototype chain or existing flags (the compiler/runtime is
// responsible for legality).  The previous value, if any, is released.
func (o *Object) Define(key string, v value.Value, flags int) {
	if p, ok := o.props[key]; ok {
		old := p.Value
		p.Value = v
		p.Flags = flags
		if p.Get != nil {
			p.Get.Release()
			p.Get = nil
		}
		if p.Set != nil {
			p.Set.Release()
			p.Set = nil
		}
		v.Acquire()
		old.Release()
		return
	}
	if o.props == nil {
		o.props = make(map[string]*Property)
	}
	o.props[key] = &Property{Value: v, Flags: flags}
	o.keys = append(o.keys, key)
	v.Acquire()
}

// DefineAccessor installs a getter or setter slot for key, preserving
// the opposite slot if already present.
func (o *Object) DefineAccessor(key string, get, set *Object, flags int) {
	p, ok := o.props[key]
	if !ok {
		if o.props == nil {
			o.props = make(map[string]*Property)
		}
		p = &Property{Flags: flags}
		o.props[key] = p
		o.keys = append(o.keys, key)
	} else {
		old := p.Value
		p.Value = value.Unused()
		old.Release()
	}
	if get != nil {
		if p.Get != nil {
			p.Get.Release()
		}
		p.Get = get
		get.Acquire()
	}
	if set != nil {
		if p.Set != nil {
			p.Set.Release()
		}
		p.Set = set
		set.Acquire()
	}
	p.Flags = flags
}

// Put writes an own data property following writability.  It returns
// false when the write is rejected (non-writable own or inherited
// non-writable data property, or non-extensible target for a new key).
// Accessor properties are not handled here; the vm resolves those
// before calling Put.
func (o *Object) Put(key string, v value.Value) bool {
	if p, ok := o.props[key]; ok {
		if p.IsAccessor() || p.Flags&FlagWritable == 0 {
			return false
		}
		old := p.Value
		p.Value = v
		v.Acquire()
		old.Release()
		return true
	}
	if p, _, ok := o.Lookup(key); ok {
		if p.IsAccessor() || p.Flags&FlagWritable == 0 {
			return false
		}
	}
	if !o.Extensible {
		return false
	}
	o.Define(key, v, FlagsWEC)
	return true
}

// Delete removes an own property.  Returns true when the property is
// absent afterwards (including "was never there"), false when blocked
// by the configurable flag.
func (o *Object) Delete(key string) bool {
	p, ok := o.props[key]
	if !ok {
		return true
	}
	if p.Flags&FlagConfigurable == 0 {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	p.Value.Release()
	if p.Get != nil {
		p.Get.Release()
	}
	if p.Set != nil {
		p.Set.Release()
	}
	return true
}

// OwnKeys returns own property keys in insertion order.
func (o *Object) OwnKeys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// EnumKeys returns the for-in key sequence: own enumerable keys first,
// then prototype keys not shadowed closer to the object, in insertion
// order per level.
func (o *Object) EnumKeys() []string {
	var out []string
	seen := make(map[string]bool)
	for cur := o; cur != nil; cur = cur.Proto {
		for _, k := range cur.keys {
			if seen[k] {
				continue
			}
			seen[k] = true
			if cur.props[k].Flags&FlagEnumerable != 0 {
				out = append(out, k)
			}
		}
	}
	return out
}

// ToValue wraps the object as a tagged value.
func ToValue(o *Object) value.Value { return value.Object(o) }

// FromValue unwraps an object value.
func FromValue(v value.Value) *Object {
	if !v.IsObject() {
		return nil
	}
	return v.Ref().(*Object)
}
