package lua

import (
	"github.com/google/uuid"

	"lua51.dev/vm/internal/luacode"
	"lua51.dev/vm/internal/luagc"
)

const (
	// maxStack bounds the register file across the whole call chain,
	// per spec's MAX_STACK.
	maxStack = 250_000

	// minStack is the minimum growth a host function call guarantees,
	// grounded on the teacher's mylua.minStack.
	minStack = 20

	// maxCallDepth bounds Lua-to-Lua call nesting, standing in for
	// spec's stack-overflow check at frame-push time.
	maxCallDepth = 200

	// maxMetaDepth bounds __index/__newindex/__call metamethod chasing,
	// grounded on the teacher's mylua.maxMetaDepth.
	maxMetaDepth = 100
)

// callFrame is the VM's activation record, per spec's CallInfo: which
// closure (or host function) is running, its base stack register, the
// saved program counter, how many results the caller wants, and the
// extra (vararg) arguments captured at call time.
type callFrame struct {
	functionIndex int // absolute index into State.stack of the function value
	closure       *Closure
	host          *GoFunction

	// base is the absolute stack index of this frame's register 0. For
	// a fixed-arity call it is functionIndex+1; for a vararg call it
	// sits above the relocated argument window (see prepareLuaFrame).
	base int

	pc int

	numResults int // -1 means "all results" (MultiReturn)

	varargBase  int
	varargCount int
}

// MultiReturn is the sentinel meaning "every result", used for CALL's C
// field of 0 and for Call/PCall's nResults parameter.
const MultiReturn = -1

// State is one Lua execution environment: a stack of Values, a chain of
// activation frames, a globals table, and a tracing collector. The zero
// value is not ready to use; construct with [NewState].
type State struct {
	ID string // per-State correlation id, for host-side logging/tracing

	stack  []Value
	frames []callFrame

	globals    *Table
	heap       *luagc.Heap
	stringMeta *Table // shared metatable for every string, enabling ("x"):upper() sugar

	openUpvalues []*Upvalue // unordered; filtered by stack index on close

	stringPool map[string]stringValue
}

// NewState returns a ready-to-use Lua environment with an empty globals
// table.
func NewState() *State {
	s := &State{
		ID:         uuid.NewString(),
		globals:    NewTable(0, 0),
		heap:       luagc.NewHeap(),
		stringPool: make(map[string]stringValue),
	}
	s.heap.Register(s.globals)
	return s
}

// Globals returns the state's global variable table.
func (s *State) Globals() *Table { return s.globals }

// intern canonicalizes str so repeated equal strings share one Go
// string header, per spec's string-interning invariant. Since Value
// strings are plain immutable Go strings rather than heap pointers,
// this is a best-effort dedup rather than a GC-managed intern table —
// see DESIGN.md.
func (s *State) intern(str string) stringValue {
	if v, ok := s.stringPool[str]; ok {
		return v
	}
	v := stringValue(str)
	s.stringPool[str] = v
	return v
}

func (s *State) frame() *callFrame { return &s.frames[len(s.frames)-1] }

// grow ensures the stack has room for at least n total slots,
// respecting maxStack.
func (s *State) grow(n int) bool {
	if n > maxStack {
		return false
	}
	if cap(s.stack) >= n {
		return true
	}
	grown := make([]Value, len(s.stack), n*2)
	copy(grown, s.stack)
	s.stack = grown
	return true
}

func (s *State) setTop(n int) {
	if n < len(s.stack) {
		clear(s.stack[n:])
	}
	for len(s.stack) < n {
		s.stack = append(s.stack, nil)
	}
	s.stack = s.stack[:n]
}

// stackUpvalue returns the (possibly newly created) open upvalue for
// stack slot i, reusing an existing entry for the same slot so two
// closures capturing the same local share one [Upvalue].
func (s *State) stackUpvalue(i int) *Upvalue {
	for _, uv := range s.openUpvalues {
		if uv.IsOpen() && uv.stackIndex == i {
			return uv
		}
	}
	uv := &Upvalue{stackIndex: i}
	s.heap.Register(uv)
	s.openUpvalues = append(s.openUpvalues, uv)
	return uv
}

// resolveUpvalue returns a pointer to uv's current value: the stack
// slot it refers to while open, or its own storage once closed.
func (s *State) resolveUpvalue(uv *Upvalue) *Value {
	if uv.IsOpen() {
		return &s.stack[uv.stackIndex]
	}
	return &uv.storage
}

// closeUpvalues closes every open upvalue at or above stack slot
// bottom: its current stack value is copied into its own storage and
// it is unlinked from the stack.
func (s *State) closeUpvalues(bottom int) {
	n := 0
	for _, uv := range s.openUpvalues {
		if uv.IsOpen() && uv.stackIndex >= bottom {
			uv.storage = s.stack[uv.stackIndex]
			uv.stackIndex = -1
		} else {
			s.openUpvalues[n] = uv
			n++
		}
	}
	clear(s.openUpvalues[n:])
	s.openUpvalues = s.openUpvalues[:n]
}

// maybeCollect runs a GC cycle if the allocation threshold has been
// crossed. It is called whenever a table or closure is allocated.
func (s *State) maybeCollect() {
	if !s.heap.ShouldCollect() {
		return
	}
	s.CollectGarbage()
}

// CollectGarbage runs a full mark-sweep cycle now, scanning every root
// per spec §4.6: the stack, the globals table, every active frame's
// closure, the shared string metatable, and the open-upvalue list.
func (s *State) CollectGarbage() {
	s.heap.Collect(func(mark func(luagc.Object)) {
		for _, v := range s.stack {
			markValue(mark, v)
		}
		mark(s.globals)
		if s.stringMeta != nil {
			mark(s.stringMeta)
		}
		for i := range s.frames {
			if c := s.frames[i].closure; c != nil {
				mark(c)
			}
			if h := s.frames[i].host; h != nil {
				mark(h)
			}
		}
		for _, uv := range s.openUpvalues {
			mark(uv)
		}
	})
}

// newClosure allocates a Lua closure over proto, registering it with
// the collector.
func (s *State) newClosure(proto *luacode.Prototype, upvalues []*Upvalue) *Closure {
	s.maybeCollect()
	c := &Closure{proto: proto, upvalues: upvalues}
	s.heap.Register(c)
	return c
}

// newTable allocates an empty table, registering it with the collector.
func (s *State) newTable(nArr, nRec int) *Table {
	s.maybeCollect()
	t := NewTable(nArr, nRec)
	s.heap.Register(t)
	return t
}

// Heap exposes the state's collector, for the standard library's
// collectgarbage implementation.
func (s *State) Heap() *luagc.Heap { return s.heap }

// SetStringMetatable installs the metatable consulted by indexing a
// string value, the mechanism the string library uses to make
// ("x"):upper() sugar work for `__index = stringLibraryTable`.
func (s *State) SetStringMetatable(mt *Table) { s.stringMeta = mt }
