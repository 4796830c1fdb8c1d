package object

import (
	"testing"

	"github.com/v4xyz/duktape/value"
)

func TestDefineAndLookup(t *testing.T) {
	proto := New(ClassObject, nil)
	proto.Define("inherited", value.Number(1), FlagsWEC)
	o := New(ClassObject, proto)
	o.Define("own", value.Number(2), FlagsWEC)

	cases := []struct {
		key    string
		found  bool
		holder *Object
		num    float64
	}{
		{"own", true, o, 2},
		{"inherited", true, proto, 1},
		{"missing", false, nil, 0},
	}
	for i, tc := range cases {
		p, holder, ok := o.Lookup(tc.key)
		if ok != tc.found {
			t.Errorf("%d: found=%v, wanted %v", i, ok, tc.found)
			continue
		}
		if !ok {
			continue
		}
		if holder != tc.holder || p.Value.Num() != tc.num {
			t.Errorf("%d: wrong holder or value", i)
		}
	}
}

func TestPutRespectsWritability(t *testing.T) {
	o := New(ClassObject, nil)
	o.Define("ro", value.Number(1), 0)
	if o.Put("ro", value.Number(2)) {
		t.Errorf("write to non-writable property must be rejected")
	}
	if p, _ := o.GetOwn("ro"); p.Value.Num() != 1 {
		t.Errorf("rejected write mutated the value")
	}

	o.Define("rw", value.Number(1), FlagsWEC)
	if !o.Put("rw", value.Number(2)) {
		t.Errorf("write to writable property failed")
	}

	// An inherited non-writable property blocks the shadow write.
	proto := New(ClassObject, nil)
	proto.Define("frozen", value.Number(1), 0)
	child := New(ClassObject, proto)
	if child.Put("frozen", value.Number(2)) {
		t.Errorf("inherited non-writable property must block the write")
	}
}

func TestPutNonExtensible(t *testing.T) {
	o := New(ClassObject, nil)
	o.Extensible = false
	if o.Put("x", value.Number(1)) {
		t.Errorf("new property on non-extensible object must be rejected")
	}
}

func TestDelete(t *testing.T) {
	o := New(ClassObject, nil)
	o.Define("c", value.Number(1), FlagsWEC)
	o.Define("nc", value.Number(2), FlagWritable)

	cases := []struct {
		key  string
		want bool
	}{
		{"c", true},
		{"nc", false},
		{"absent", true},
	}
	for i, tc := range cases {
		if got := o.Delete(tc.key); got != tc.want {
			t.Errorf("%d: delete %q = %v, wanted %v", i, tc.key, got, tc.want)
		}
	}
	if _, ok := o.GetOwn("c"); ok {
		t.Errorf("deleted property still present")
	}
}

func TestEnumKeysOrderAndShadowing(t *testing.T) {
	proto := New(ClassObject, nil)
	proto.Define("a", value.Number(0), FlagsWEC)
	proto.Define("p", value.Number(0), FlagsWEC)
	proto.Define("hidden", value.Number(0), 0) // not enumerable

	o := New(ClassObject, proto)
	o.Define("b", value.Number(0), FlagsWEC)
	o.Define("a", value.Number(1), FlagsWEC) // shadows proto's a

	got := o.EnumKeys()
	want := []string{"b", "a", "p"}
	if len(got) != len(want) {
		t.Fatalf("got %v, wanted %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d: got %q, wanted %q", i, got[i], want[i])
		}
	}
}

func TestShadowedNonEnumerableBlocksProtoKey(t *testing.T) {
	// An own non-enumerable property shadows an enumerable proto key
	// out of the sequence entirely.
	proto := New(ClassObject, nil)
	proto.Define("k", value.Number(0), FlagsWEC)
	o := New(ClassObject, proto)
	o.Define("k", value.Number(1), 0)
	if keys := o.EnumKeys(); len(keys) != 0 {
		t.Errorf("got %v, wanted no keys", keys)
	}
}

func TestDeclEnvResolution(t *testing.T) {
	outer := NewDeclEnv(nil)
	outer.Declare("x", value.Number(1), true, false)
	inner := NewDeclEnv(outer)
	inner.Declare("y", value.Number(2), true, false)

	cases := []struct {
		name  string
		found bool
		num   float64
	}{
		{"y", true, 2},
		{"x", true, 1},
		{"z", false, 0},
	}
	for i, tc := range cases {
		ref, ok := ResolveIdentifier(inner, tc.name)
		if ok != tc.found {
			t.Errorf("%d: found=%v, wanted %v", i, ok, tc.found)
			continue
		}
		if !ok {
			continue
		}
		b, _ := ref.Decl.Binding(tc.name)
		if b.Value.Num() != tc.num {
			t.Errorf("%d: got %v, wanted %v", i, b.Value.Num(), tc.num)
		}
		if !ref.This.IsUndefined() {
			t.Errorf("%d: declarative resolution must have undefined this", i)
		}
	}
}

func TestObjEnvProvidesThis(t *testing.T) {
	target := New(ClassObject, nil)
	target.Define("m", value.Number(5), FlagsWEC)

	plain := NewObjEnv(nil, target, false)
	ref, ok := ResolveIdentifier(plain, "m")
	if !ok || !ref.This.IsUndefined() {
		t.Errorf("non-with object env must not provide this")
	}

	with := NewObjEnv(nil, target, true)
	ref, ok = ResolveIdentifier(with, "m")
	if !ok || !ref.This.IsObject() || FromValue(ref.This) != target {
		t.Errorf("with env must provide the binding object as this")
	}
}

func TestBindingWritability(t *testing.T) {
	env := NewDeclEnv(nil)
	env.Declare("c", value.Number(1), false, false)
	b, _ := env.Binding("c")
	if b.Set(value.Number(2)) {
		t.Errorf("write to non-writable binding must fail")
	}
	if b.Value.Num() != 1 {
		t.Errorf("failed write mutated the binding")
	}
}

func TestDeleteIdentifier(t *testing.T) {
	env := NewDeclEnv(nil)
	env.Declare("d", value.Number(1), true, true)
	env.Declare("p", value.Number(2), true, false)

	cases := []struct {
		name string
		want bool
	}{
		{"d", true},
		{"p", false},
		{"ghost", true},
	}
	for i, tc := range cases {
		if got := DeleteIdentifier(env, tc.name); got != tc.want {
			t.Errorf("%d: delete %q = %v, wanted %v", i, tc.name, got, tc.want)
		}
	}
}

func TestDeclareVar(t *testing.T) {
	env := NewDeclEnv(nil)
	if DeclareVar(env, "v", value.Number(1), true, false) {
		t.Errorf("first declaration reported as existing")
	}
	if !DeclareVar(env, "v", value.Number(2), true, false) {
		t.Errorf("second declaration must report existing")
	}
	b, _ := env.Binding("v")
	if b.Value.Num() != 1 {
		t.Errorf("redeclaration must not overwrite directly")
	}

	g := New(ClassObject, nil)
	genv := NewObjEnv(nil, g, false)
	if DeclareVar(genv, "gv", value.Number(3), true, true) {
		t.Errorf("object-env declaration reported as existing")
	}
	if p, ok := g.GetOwn("gv"); !ok || p.Value.Num() != 3 {
		t.Errorf("object-env declaration did not define the property")
	}
}
