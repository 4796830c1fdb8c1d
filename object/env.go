package object

import (
	"github.com/v4xyz/duktape/value"
)

// Env is an environment record.  Two kinds exist: declarative (plain
// name to binding map) and object (wraps a binding object, optionally
// providing a 'this' value, as 'with' statements do).  Lookup walks the
// outer chain.
type Env interface {
	value.RefCounted
	OuterEnv() Env
}

// Binding is a slot in a declarative record.
type Binding struct {
	Value     value.Value
	Writable  bool
	Deletable bool
}

// DeclEnv is a declarative environment record.
type DeclEnv struct {
	value.RefCount
	outer    Env
	bindings map[string]*Binding
}

// NewDeclEnv creates an empty declarative record with the given outer.
func NewDeclEnv(outer Env) *DeclEnv {
	return &DeclEnv{outer: outer, bindings: make(map[string]*Binding)}
}

func (e *DeclEnv) OuterEnv() Env { return e.outer }

// Declare installs a binding, overwriting any existing one.
func (e *DeclEnv) Declare(name string, v value.Value, writable, deletable bool) {
	if b, ok := e.bindings[name]; ok {
		old := b.Value
		b.Value = v
		b.Writable = writable
		b.Deletable = deletable
		v.Acquire()
		old.Release()
		return
	}
	e.bindings[name] = &Binding{Value: v, Writable: writable, Deletable: deletable}
	v.Acquire()
}

// Binding returns the binding for name, if present.
func (e *DeclEnv) Binding(name string) (*Binding, bool) {
	b, ok := e.bindings[name]
	return b, ok
}

// Set writes a binding value following writability.
func (b *Binding) Set(v value.Value) bool {
	if !b.Writable {
		return false
	}
	old := b.Value
	b.Value = v
	v.Acquire()
	old.Release()
	return true
}

// ObjEnv is an object environment record.  ProvidesThis is set for
// 'with' bindings: an identifier resolved through such a record gets
// the binding object as its call-site 'this'.
type ObjEnv struct {
	value.RefCount
	outer        Env
	Target       *Object
	ProvidesThis bool
}

// NewObjEnv creates an object record wrapping target.
func NewObjEnv(outer Env, target *Object, providesThis bool) *ObjEnv {
	return &ObjEnv{outer: outer, Target: target, ProvidesThis: providesThis}
}

func (e *ObjEnv) OuterEnv() Env { return e.outer }

// Ref is a resolved identifier reference.  Exactly one of Decl and Obj
// is non-nil.  This is the call-site 'this' binding: undefined unless
// the identifier resolved through a this-providing object record.
type Ref struct {
	Name string
	Decl *DeclEnv
	Obj  *Object
	This value.Value
}

// ResolveIdentifier walks the environment chain for name.
func ResolveIdentifier(env Env, name string) (Ref, bool) {
	for e := env; e != nil; e = e.OuterEnv() {
		switch rec := e.(type) {
		case *DeclEnv:
			if _, ok := rec.bindings[name]; ok {
				return Ref{Name: name, Decl: rec, This: value.Undefined()}, true
			}
		case *ObjEnv:
			if rec.Target.HasProperty(name) {
				this := value.Undefined()
				if rec.ProvidesThis {
					this = ToValue(rec.Target)
				}
				return Ref{Name: name, Obj: rec.Target, This: this}, true
			}
		}
	}
	return Ref{}, false
}

// DeleteIdentifier removes the innermost binding for name.  Returns
// true when the name no longer resolves at that level (absent names
// delete successfully, per the delete operator).
func DeleteIdentifier(env Env, name string) bool {
	for e := env; e != nil; e = e.OuterEnv() {
		switch rec := e.(type) {
		case *DeclEnv:
			if b, ok := rec.bindings[name]; ok {
				if !b.Deletable {
					return false
				}
				delete(rec.bindings, name)
				b.Value.Release()
				return true
			}
		case *ObjEnv:
			if rec.Target.HasProperty(name) {
				if _, ok := rec.Target.GetOwn(name); ok {
					return rec.Target.Delete(name)
				}
				return false
			}
		}
	}
	return true
}

// DeclareVar declares name in the given record (the activation's
// variable environment).  Returns true when the name was already
// declared there, in which case the caller must perform a normal
// identifier write with the value instead.
func DeclareVar(env Env, name string, v value.Value, writable, deletable bool) bool {
	switch rec := env.(type) {
	case *DeclEnv:
		if _, ok := rec.bindings[name]; ok {
			return true
		}
		rec.Declare(name, v, writable, deletable)
		return false
	case *ObjEnv:
		if _, ok := rec.Target.GetOwn(name); ok {
			return true
		}
		flags := FlagWritable | FlagEnumerable
		if deletable {
			flags |= FlagConfigurable
		}
		rec.Target.Define(name, v, flags)
		return false
	}
	return false
}
