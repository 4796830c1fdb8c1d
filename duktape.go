// Package duktape is a register-based bytecode execution core for an
// ECMAScript-style language runtime: a dispatch loop over a fixed-width
// instruction set, non-local control transfers with try/catch/finally
// and labeled break/continue, and cooperative coroutines with
// resume/yield.  The compiler producing instruction streams and the
// full built-in library are external collaborators.
package duktape

import (
	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/object"
	"github.com/v4xyz/duktape/value"
	"github.com/v4xyz/duktape/vm"
)

// Runtime bundles a heap with the conveniences an embedder needs to
// run compiled functions.
type Runtime struct {
	heap *vm.Heap
}

// New creates a runtime with the default configuration.
func New() *Runtime {
	return NewWithConfig(vm.DefaultConfig())
}

// NewWithConfig creates a runtime with explicit knobs.
func NewWithConfig(cfg vm.Config) *Runtime {
	return &Runtime{heap: vm.NewHeap(cfg)}
}

// Heap exposes the underlying runtime handle.
func (r *Runtime) Heap() *vm.Heap { return r.heap }

// Global returns the global object.
func (r *Runtime) Global() *object.Object { return r.heap.Global() }

// Run instantiates a compiled program function in the global
// environment and executes it with the global object as 'this'.  An
// uncaught script error is returned as a *vm.ThrownError.
func (r *Runtime) Run(fn *bytecode.Function) (value.Value, error) {
	clos := r.heap.NewClosure(fn, r.heap.GlobalEnv(), r.heap.GlobalEnv())
	return r.heap.Call(object.ToValue(clos), object.ToValue(r.heap.Global()))
}
