package luacode

import "lua51.dev/vm/internal/luaast"

// maxLocals bounds the number of local variables live at once in a
// single function. It is below the 256 registers that the 8-bit A
// field of an iABC instruction can address.
const maxLocals = 200

// maxUpvalues is the per-closure upvalue limit from spec §4.3.
const maxUpvalues = 255

// maxNesting is the per-chunk function nesting depth limit from spec §4.3.
const maxNesting = 200

// localVar is an active local variable: its name and the register
// slot the register allocator pinned it to.
type localVar struct {
	name     string
	register uint8
}

// blockState tracks one lexical scope (a loop body, an if/do block,
// or a function body) for break-patching and local variable lifetime.
type blockState struct {
	parent       *blockState
	isLoop       bool
	firstLocal   int   // index into funcState.actives at block entry
	firstFreeReg uint8 // register allocator position at block entry
	needsClose   bool  // a local of this block is captured by a closure
	breakJumps   []int
}

// funcState is the in-progress compilation state for a single
// function body (main chunk or nested function literal).
//
// The register allocator is a monotonic "next free register" counter
// that resets to a scope's starting point when the scope ends, per
// spec §4.4: locals are pinned to their declared slot for the scope's
// lifetime, and everything else is a free temporary.
type funcState struct {
	parent *funcState
	proto  *Prototype

	actives []localVar // active locals, outermost first
	block   *blockState

	freeReg uint8 // next free register

	prevLine int
}

func newFuncState(parent *funcState, source Source, lineDefined int) *funcState {
	return &funcState{
		parent: parent,
		proto: &Prototype{
			Source:      source,
			LineDefined: lineDefined,
		},
		freeReg: 0,
	}
}

func (fs *funcState) enterBlock(isLoop bool) {
	fs.block = &blockState{
		parent:       fs.block,
		isLoop:       isLoop,
		firstLocal:   len(fs.actives),
		firstFreeReg: fs.freeReg,
	}
}

// leaveBlock pops locals declared in the block and returns the
// register allocator to the block's starting point, then returns the
// block's collected break-jump program counters so the caller can
// patch them once the loop's exit point is known.
//
// A block with captured locals emits CLOSE on the way out, so each
// loop iteration (the instruction lands before the loop's back jump)
// and each plain block exit gets its own upvalue generation.
func (fs *funcState) leaveBlock() []int {
	b := fs.block
	if b.needsClose {
		fs.emitABC(OpClose, b.firstFreeReg, 0, 0, fs.prevLine)
	}
	fs.actives = fs.actives[:b.firstLocal]
	fs.freeReg = b.firstFreeReg
	fs.block = b.parent
	return b.breakJumps
}

// markCaptured records that the local pinned to reg has been captured
// as an upvalue, on the innermost block that declared a register that
// low.
func (fs *funcState) markCaptured(reg uint8) {
	for b := fs.block; b != nil; b = b.parent {
		if b.firstFreeReg <= reg {
			b.needsClose = true
			return
		}
	}
}

// enclosingLoop returns the nearest enclosing loop block, or nil if
// break appears outside a loop.
func (fs *funcState) enclosingLoop() *blockState {
	for b := fs.block; b != nil; b = b.parent {
		if b.isLoop {
			return b
		}
	}
	return nil
}

// declareLocal allocates the next free register for a new local
// variable and returns its slot. Enforcing maxLocals is the
// compiler's job (it has the error sink); see compiler.declareLocal.
func (fs *funcState) declareLocal(name string) uint8 {
	reg := fs.freeReg
	fs.reserveRegisters(1)
	fs.actives = append(fs.actives, localVar{name: name, register: reg})
	return reg
}

// reserveRegisters advances the free-register counter by n and grows
// MaxStackSize if needed.
func (fs *funcState) reserveRegisters(n int) {
	fs.setFreeReg(fs.freeReg + uint8(n))
}

// setFreeReg sets the next-free-register counter directly, growing
// MaxStackSize if r is the highest register touched so far. Used when
// a register range's end is already known (e.g. resetting to a
// scope's base, or past a multi-register result) rather than growing
// one register at a time.
func (fs *funcState) setFreeReg(r uint8) {
	fs.freeReg = r
	if int(r) > int(fs.proto.MaxStackSize) {
		fs.proto.MaxStackSize = r
	}
}

// resolution is the outcome of resolving a name per spec §4.3.
type resolutionKind int

const (
	resolveGlobal resolutionKind = iota
	resolveLocal
	resolveUpvalue
)

type resolution struct {
	kind  resolutionKind
	index uint8 // register for resolveLocal, upvalue index for resolveUpvalue
}

// resolve implements the name lookup algorithm from spec §4.3: search
// this function's active locals, then (recursively) ask ancestor
// functions, threading an upvalue descriptor through every
// intermediate function that spans the capture; fall back to global.
func (fs *funcState) resolve(name string) resolution {
	if reg, ok := fs.findLocal(name); ok {
		return resolution{kind: resolveLocal, index: reg}
	}
	if idx, ok := fs.findUpvalue(name); ok {
		return resolution{kind: resolveUpvalue, index: idx}
	}
	if fs.parent == nil {
		return resolution{kind: resolveGlobal}
	}
	switch parentRes := fs.parent.resolve(name); parentRes.kind {
	case resolveLocal:
		fs.parent.markCaptured(parentRes.index)
		idx := fs.addUpvalue(name, true, parentRes.index)
		return resolution{kind: resolveUpvalue, index: idx}
	case resolveUpvalue:
		idx := fs.addUpvalue(name, false, parentRes.index)
		return resolution{kind: resolveUpvalue, index: idx}
	default:
		return resolution{kind: resolveGlobal}
	}
}

func (fs *funcState) findLocal(name string) (uint8, bool) {
	for i := len(fs.actives) - 1; i >= 0; i-- {
		if fs.actives[i].name == name {
			return fs.actives[i].register, true
		}
	}
	return 0, false
}

func (fs *funcState) findUpvalue(name string) (uint8, bool) {
	for i, uv := range fs.proto.Upvalues {
		if uv.Name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

func (fs *funcState) addUpvalue(name string, inStack bool, index uint8) uint8 {
	fs.proto.Upvalues = append(fs.proto.Upvalues, UpvalueDescriptor{
		Name:    name,
		InStack: inStack,
		Index:   index,
	})
	return uint8(len(fs.proto.Upvalues) - 1)
}

// nestingDepth returns how many function levels deep fs is, the main
// chunk being depth 1.
func (fs *funcState) nestingDepth() int {
	n := 0
	for f := fs; f != nil; f = f.parent {
		n++
	}
	return n
}

// line returns the best-known current source line, used to stamp
// LineInfo entries and compile-time errors when a more specific
// position isn't available.
func (fs *funcState) line(pos luaast.Position) int {
	if pos.Line > 0 {
		fs.prevLine = pos.Line
	}
	return fs.prevLine
}
