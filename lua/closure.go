package lua

import (
	"lua51.dev/vm/internal/luacode"
	"lua51.dev/vm/internal/luagc"
)

// Closure is a Lua function value: a compiled prototype paired with the
// upvalues it closes over.
type Closure struct {
	luagc.Header

	proto    *luacode.Prototype
	upvalues []*Upvalue
}

func (c *Closure) valueType() Type { return TypeFunction }

// GCTraverse marks every upvalue. The prototype itself (and its
// constant pool and child prototypes) is immutable, compile-time data
// owned by the chunk rather than the heap, so it is not itself a GC
// object — see DESIGN.md.
func (c *Closure) GCTraverse(mark func(luagc.Object)) {
	for _, uv := range c.upvalues {
		mark(uv)
	}
}

// GCSize estimates the closure's heap footprint.
func (c *Closure) GCSize() int {
	return 32 + len(c.upvalues)*8
}

// Function is a callback for a Lua-callable value implemented in Go,
// grounded on the teacher's mylua.Function convention: arguments arrive
// via args in direct order, and results are returned the same way.
type Function func(s *State, args []Value) ([]Value, error)

// GoFunction wraps a host-implemented [Function] so it can be stored in
// a Value and called from Lua like any other function.
type GoFunction struct {
	luagc.Header

	Name string
	Fn   Function
}

func (f *GoFunction) valueType() Type { return TypeFunction }

// GCTraverse: a GoFunction holds no Lua-visible references of its own.
func (f *GoFunction) GCTraverse(func(luagc.Object)) {}

// GCSize estimates the wrapper's heap footprint.
func (f *GoFunction) GCSize() int { return 32 }

// NewGoFunction wraps fn as a callable Value, for registering host
// functions under a global name or inside a library table.
func NewGoFunction(name string, fn Function) *GoFunction {
	return &GoFunction{Name: name, Fn: fn}
}

// Upvalue is a variable shared between a closure and its defining
// scope: open while the scope is live on the stack (referenced by
// index so stack growth can relocate the backing array safely), closed
// once the scope exits (holding its own copy of the last value).
//
// This mirrors the teacher's mylua.upvalue exactly: stackIndex >= 0
// means open (the value lives at State.stack[stackIndex]); stackIndex
// == -1 means closed (the value lives in storage).
type Upvalue struct {
	luagc.Header

	stackIndex int
	storage    Value
}

func (uv *Upvalue) valueType() Type { return TypeFunction } // not user-observable; never stored in a Value slot directly

// IsOpen reports whether the upvalue still refers to a live stack slot.
func (uv *Upvalue) IsOpen() bool { return uv.stackIndex >= 0 }

// GCTraverse marks the closed-over value; an open upvalue's value is
// already a root via the stack slot it points to.
func (uv *Upvalue) GCTraverse(mark func(luagc.Object)) {
	if !uv.IsOpen() {
		markValue(mark, uv.storage)
	}
}

// GCSize estimates the upvalue's heap footprint.
func (uv *Upvalue) GCSize() int { return 24 }
