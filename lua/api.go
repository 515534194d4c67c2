package lua

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"lua51.dev/vm/internal/luacode"
)

// binaryChunkPrefix is the first byte of a precompiled chunk, shared
// with the signature [luacode.Prototype.MarshalBinary] writes.
const binaryChunkPrefix = 0x1b

// Load compiles (or, for a precompiled binary chunk, decodes) a chunk
// and returns it as a callable function value. chunkName is used in
// error messages, conventionally "@filename" for file sources.
func (s *State) Load(r io.Reader, chunkName string) (Value, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(1)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("load %s: %w", chunkName, err)
	}

	var proto *luacode.Prototype
	if len(first) > 0 && first[0] == binaryChunkPrefix {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", chunkName, err)
		}
		proto = new(luacode.Prototype)
		if err := proto.UnmarshalBinary(data); err != nil {
			return nil, err
		}
	} else {
		proto, err = luacode.Compile(luacode.Source(chunkName), br)
		if err != nil {
			return nil, err
		}
	}
	return s.newClosure(proto, nil), nil
}

// LoadString compiles source text into a callable function value.
func (s *State) LoadString(source, chunkName string) (Value, error) {
	return s.Load(strings.NewReader(source), chunkName)
}

// DoString compiles and runs source, returning the chunk's return
// values. Compile errors and uncaught runtime errors both surface as
// the error result.
func (s *State) DoString(source, chunkName string) ([]Value, error) {
	fn, err := s.LoadString(source, chunkName)
	if err != nil {
		return nil, err
	}
	return s.Call(fn, nil, MultiReturn)
}

// DoFile loads and runs the chunk stored at path, which may hold
// either Lua source or a precompiled binary chunk.
func (s *State) DoFile(path string) ([]Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.DoReader(f, "@"+path)
}

// DoReader loads and runs a chunk from r.
func (s *State) DoReader(r io.Reader, chunkName string) ([]Value, error) {
	fn, err := s.Load(r, chunkName)
	if err != nil {
		return nil, err
	}
	return s.Call(fn, nil, MultiReturn)
}

// GetGlobal reads the global variable name, without metamethods (the
// globals table has no metatable unless the host installs one).
func (s *State) GetGlobal(name string) Value {
	return s.globals.Get(s.intern(name))
}

// SetGlobal writes the global variable name.
func (s *State) SetGlobal(name string, v Value) {
	s.globals.Set(s.intern(name), v)
}

// Register binds fn as a global host function under name.
func (s *State) Register(name string, fn Function) {
	gf := NewGoFunction(name, fn)
	s.heap.Register(gf)
	s.SetGlobal(name, gf)
}

// RegisterLib creates a table holding the given host functions, stores
// it as a global under name, and returns it so callers can add
// non-function fields (e.g. math.pi).
func (s *State) RegisterLib(name string, funcs map[string]Function) *Table {
	lib := s.newTable(0, len(funcs))
	for fname, fn := range funcs {
		gf := NewGoFunction(name+"."+fname, fn)
		s.heap.Register(gf)
		lib.Set(String(fname), gf)
	}
	s.SetGlobal(name, lib)
	return lib
}

// NewFunction wraps fn as a callable Value tracked by the collector.
func (s *State) NewFunction(name string, fn Function) Value {
	gf := NewGoFunction(name, fn)
	s.heap.Register(gf)
	return gf
}

// NewTableValue allocates a GC-tracked table for host use.
func (s *State) NewTableValue(nArr, nRec int) *Table {
	return s.newTable(nArr, nRec)
}

// Push places v on top of the value stack. It fails only on stack
// overflow.
func (s *State) Push(v Value) error {
	if !s.grow(len(s.stack) + 1) {
		return errStackOverflow
	}
	s.stack = append(s.stack, v)
	return nil
}

// Pop removes and returns the top of the value stack, or nil if the
// stack is empty.
func (s *State) Pop() Value {
	if len(s.stack) == 0 {
		return nil
	}
	v := s.stack[len(s.stack)-1]
	s.setTop(len(s.stack) - 1)
	return v
}

// Peek returns the value n slots down from the stack top without
// removing it: Peek(0) is the top itself.
func (s *State) Peek(n int) Value {
	i := len(s.stack) - 1 - n
	if i < 0 || i >= len(s.stack) {
		return nil
	}
	return s.stack[i]
}

// Top returns the current stack height.
func (s *State) Top() int { return len(s.stack) }

// Metatable returns v's metatable the way metamethod dispatch sees it:
// a table's own metatable, the shared string metatable for strings,
// nil for everything else.
func (s *State) Metatable(v Value) *Table {
	return s.metatable(v)
}

// Metamethod returns the handler stored under event in v's metatable,
// or nil.
func (s *State) Metamethod(v Value, event string) Value {
	return s.metamethod(v, event)
}

// ToDisplayString converts v to the string tostring would produce,
// honoring a __tostring metamethod.
func (s *State) ToDisplayString(v Value) (string, error) {
	if mm := s.metamethod(v, "__tostring"); mm != nil {
		results, err := s.call1Multi(mm, []Value{v}, 1)
		if err != nil {
			return "", err
		}
		return ToStringValue(results[0]), nil
	}
	return ToStringValue(v), nil
}
