// Package luacode implements the Lua 5.1 bytecode format: the
// Instruction encoding, the compiler that lowers an AST into a
// Prototype, and a binary chunk dump/load codec (modeled on luac's
// layout, but with its own fixed-width format).
package luacode

import "fmt"

// Instruction is a single virtual machine instruction, encoded per
// Lua 5.1's iABC/iABx/iAsBx layout: a 6-bit opcode, an 8-bit A field,
// and either a 9-bit B and 9-bit C field or one combined 18-bit Bx/sBx
// field.
type Instruction uint32

const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC

	maxArgA  = 1<<sizeA - 1
	maxArgB  = 1<<sizeB - 1
	maxArgC  = 1<<sizeC - 1
	maxArgBx = 1<<sizeBx - 1
	offsetBx = maxArgBx >> 1
)

// bitRK is the high bit of a B or C field that marks the operand as a
// constant-pool index (an "RK" operand) rather than a register index.
const bitRK = 1 << (sizeB - 1)

// IsConstant reports whether an RK-encoded operand (from ArgB or
// ArgC) refers to the constant pool rather than a register.
func IsConstant(rk uint16) bool {
	return rk&bitRK != 0
}

// ConstantIndex extracts the constant pool index from an RK-encoded
// operand for which [IsConstant] is true.
func ConstantIndex(rk uint16) uint16 {
	return rk &^ bitRK
}

// RKAsConstant encodes a constant pool index i as an RK operand.
func RKAsConstant(i uint16) uint16 {
	return i | bitRK
}

// ABCInstruction returns a new iABC [Instruction]. b and c may be
// plain register indices or RK-encoded operands (see [RKAsConstant]).
func ABCInstruction(op OpCode, a uint8, b, c uint16) Instruction {
	if op.OpMode() != OpModeABC {
		panic("ABCInstruction with invalid OpCode")
	}
	return Instruction(op)<<posOp |
		Instruction(a)<<posA |
		Instruction(b)<<posB |
		Instruction(c)<<posC
}

// ABxInstruction returns a new iABx or iAsBx [Instruction].
func ABxInstruction(op OpCode, a uint8, bx int32) Instruction {
	switch op.OpMode() {
	case OpModeABx:
		if bx < 0 || bx > maxArgBx {
			panic("Bx argument out of range")
		}
		return Instruction(op)<<posOp | Instruction(a)<<posA | Instruction(bx)<<posBx
	case OpModeAsBx:
		if bx < -offsetBx || bx > maxArgBx-offsetBx {
			panic("sBx argument out of range")
		}
		return Instruction(op)<<posOp | Instruction(a)<<posA | Instruction(bx+offsetBx)<<posBx
	default:
		panic("ABxInstruction with invalid OpCode")
	}
}

// OpCode returns the instruction's opcode.
func (i Instruction) OpCode() OpCode {
	return OpCode(i >> posOp & (1<<sizeOp - 1))
}

// ArgA returns the A field.
func (i Instruction) ArgA() uint8 {
	return uint8(i >> posA & maxArgA)
}

// ArgB returns the B field of an iABC instruction. The result may be
// RK-encoded; use [IsConstant] and [ConstantIndex] to decode it.
func (i Instruction) ArgB() uint16 {
	return uint16(i >> posB & maxArgB)
}

// ArgC returns the C field of an iABC instruction. The result may be
// RK-encoded; use [IsConstant] and [ConstantIndex] to decode it.
func (i Instruction) ArgC() uint16 {
	return uint16(i >> posC & maxArgC)
}

// ArgBx returns the Bx field of an iABx instruction as an unsigned
// constant-pool or prototype index.
func (i Instruction) ArgBx() int32 {
	return int32(i >> posBx & maxArgBx)
}

// ArgSBx returns the Bx field of an iAsBx instruction as a signed
// offset, as used by JMP, FORPREP, FORLOOP, and TFORLOOP.
func (i Instruction) ArgSBx() int32 {
	return i.ArgBx() - offsetBx
}

// String formats the instruction in a manner similar to luac -l.
func (i Instruction) String() string {
	switch op := i.OpCode(); op.OpMode() {
	case OpModeABC:
		return fmt.Sprintf("%-9s %d %d %d", op, i.ArgA(), i.ArgB(), i.ArgC())
	case OpModeABx:
		return fmt.Sprintf("%-9s %d %d", op, i.ArgA(), i.ArgBx())
	case OpModeAsBx:
		return fmt.Sprintf("%-9s %d %d", op, i.ArgA(), i.ArgSBx())
	default:
		return fmt.Sprintf("Instruction(%#08x)", uint32(i))
	}
}

// OpCode enumerates the Lua 5.1 instruction set.
type OpCode uint8

// Defined OpCode values, in the order upstream Lua 5.1 assigns them.
const (
	OpMove OpCode = iota
	OpLoadK
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetGlobal
	OpGetTable
	OpSetGlobal
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUNM
	OpNot
	OpLen
	OpConcat
	OpJMP
	OpEQ
	OpLT
	OpLE
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForLoop
	OpSetList
	OpClose
	OpClosure
	OpVararg

	maxOpCode = OpVararg
)

// IsValid reports whether op is one of the known Lua 5.1 opcodes.
func (op OpCode) IsValid() bool {
	return op <= maxOpCode
}

var opCodeNames = [...]string{
	OpMove:      "MOVE",
	OpLoadK:     "LOADK",
	OpLoadBool:  "LOADBOOL",
	OpLoadNil:   "LOADNIL",
	OpGetUpval:  "GETUPVAL",
	OpGetGlobal: "GETGLOBAL",
	OpGetTable:  "GETTABLE",
	OpSetGlobal: "SETGLOBAL",
	OpSetUpval:  "SETUPVAL",
	OpSetTable:  "SETTABLE",
	OpNewTable:  "NEWTABLE",
	OpSelf:      "SELF",
	OpAdd:       "ADD",
	OpSub:       "SUB",
	OpMul:       "MUL",
	OpDiv:       "DIV",
	OpMod:       "MOD",
	OpPow:       "POW",
	OpUNM:       "UNM",
	OpNot:       "NOT",
	OpLen:       "LEN",
	OpConcat:    "CONCAT",
	OpJMP:       "JMP",
	OpEQ:        "EQ",
	OpLT:        "LT",
	OpLE:        "LE",
	OpTest:      "TEST",
	OpTestSet:   "TESTSET",
	OpCall:      "CALL",
	OpTailCall:  "TAILCALL",
	OpReturn:    "RETURN",
	OpForLoop:   "FORLOOP",
	OpForPrep:   "FORPREP",
	OpTForLoop:  "TFORLOOP",
	OpSetList:   "SETLIST",
	OpClose:     "CLOSE",
	OpClosure:   "CLOSURE",
	OpVararg:    "VARARG",
}

func (op OpCode) String() string {
	if !op.IsValid() {
		return fmt.Sprintf("OpCode(%d)", uint8(op))
	}
	return opCodeNames[op]
}

// OpMode is the instruction encoding format an opcode uses.
type OpMode uint8

const (
	OpModeABC OpMode = iota
	OpModeABx
	OpModeAsBx
)

// opModes indexes the encoding format for each opcode.
var opModes = [...]OpMode{
	OpMove:      OpModeABC,
	OpLoadK:     OpModeABx,
	OpLoadBool:  OpModeABC,
	OpLoadNil:   OpModeABC,
	OpGetUpval:  OpModeABC,
	OpGetGlobal: OpModeABx,
	OpGetTable:  OpModeABC,
	OpSetGlobal: OpModeABx,
	OpSetUpval:  OpModeABC,
	OpSetTable:  OpModeABC,
	OpNewTable:  OpModeABC,
	OpSelf:      OpModeABC,
	OpAdd:       OpModeABC,
	OpSub:       OpModeABC,
	OpMul:       OpModeABC,
	OpDiv:       OpModeABC,
	OpMod:       OpModeABC,
	OpPow:       OpModeABC,
	OpUNM:       OpModeABC,
	OpNot:       OpModeABC,
	OpLen:       OpModeABC,
	OpConcat:    OpModeABC,
	OpJMP:       OpModeAsBx,
	OpEQ:        OpModeABC,
	OpLT:        OpModeABC,
	OpLE:        OpModeABC,
	OpTest:      OpModeABC,
	OpTestSet:   OpModeABC,
	OpCall:      OpModeABC,
	OpTailCall:  OpModeABC,
	OpReturn:    OpModeABC,
	OpForLoop:   OpModeAsBx,
	OpForPrep:   OpModeAsBx,
	OpTForLoop:  OpModeABC,
	OpSetList:   OpModeABC,
	OpClose:     OpModeABC,
	OpClosure:   OpModeABx,
	OpVararg:    OpModeABC,
}

// OpMode returns the instruction encoding format for op.
func (op OpCode) OpMode() OpMode {
	if !op.IsValid() {
		return OpModeABC
	}
	return opModes[op]
}

// testFlagOps marks opcodes whose next instruction is conditionally
// skipped: EQ, LT, LE, TEST, TESTSET, and TFORLOOP always fall through
// to a JMP in well-formed bytecode.
var testFlagOps = map[OpCode]bool{
	OpEQ:       true,
	OpLT:       true,
	OpLE:       true,
	OpTest:     true,
	OpTestSet:  true,
	OpTForLoop: true,
}

// IsTest reports whether the instruction conditionally skips the next
// instruction (which must be a JMP in valid bytecode).
func (op OpCode) IsTest() bool {
	return testFlagOps[op]
}
