package luacode

import (
	"lua51.dev/vm/internal/luaast"
	"lua51.dev/vm/internal/lualex"
)

// isMultiExpr reports whether e can produce more than one value when
// it is the last entry of an expression list: a call (all its
// results) or `...` (all extra arguments).
func isMultiExpr(e luaast.Expr) bool {
	switch e.(type) {
	case *luaast.CallExpr, *luaast.VarargExpr:
		return true
	default:
		return false
	}
}

// compileExprTo compiles e so its single result lands in register dest.
func (c *compiler) compileExprTo(fs *funcState, e luaast.Expr, dest uint8) {
	line := fs.line(e.Pos())
	switch ex := e.(type) {
	case *luaast.NilExpr:
		fs.loadNil(dest, dest, line)
	case *luaast.TrueExpr:
		fs.emitABC(OpLoadBool, dest, 1, 0, line)
	case *luaast.FalseExpr:
		fs.emitABC(OpLoadBool, dest, 0, 0, line)
	case *luaast.NumberExpr:
		n, err := lualex.ParseNumber(ex.Text)
		if err != nil {
			c.fail(ex.Position, "malformed number %q", ex.Text)
			return
		}
		fs.emitABx(OpLoadK, dest, int32(fs.proto.addConstant(NumberValue(n))), line)
	case *luaast.StringExpr:
		fs.emitABx(OpLoadK, dest, int32(fs.proto.addConstant(StringValue(ex.Value))), line)
	case *luaast.VarargExpr:
		fs.emitABC(OpVararg, dest, 2, 0, line)
	case *luaast.NameExpr:
		c.compileName(fs, ex, dest)
	case *luaast.IndexExpr:
		base := fs.freeReg
		objReg := base
		c.compileExprTo(fs, ex.Object, objReg)
		fs.reserveRegisters(1)
		key := c.compileRK(fs, ex.Key)
		fs.emitABC(OpGetTable, dest, uint16(objReg), key, line)
		fs.freeReg = base
	case *luaast.ParenExpr:
		c.compileExprTo(fs, ex.Inner, dest)
	case *luaast.CallExpr:
		c.compileCall(fs, ex, dest, 2)
	case *luaast.FunctionExpr:
		c.compileFunctionExprTo(fs, ex.Body, dest)
	case *luaast.TableExpr:
		c.compileTableExprTo(fs, ex, dest)
	case *luaast.UnaryExpr:
		c.compileUnaryTo(fs, ex, dest)
	case *luaast.BinaryExpr:
		c.compileBinaryTo(fs, ex, dest)
	default:
		c.fail(e.Pos(), "unsupported expression %T", e)
	}
}

func (c *compiler) compileName(fs *funcState, n *luaast.NameExpr, dest uint8) {
	line := n.Position.Line
	switch res := fs.resolve(n.Name); res.kind {
	case resolveLocal:
		if res.index != dest {
			fs.emitABC(OpMove, dest, uint16(res.index), 0, line)
		}
	case resolveUpvalue:
		fs.emitABC(OpGetUpval, dest, uint16(res.index), 0, line)
	default:
		fs.emitABx(OpGetGlobal, dest, int32(fs.proto.addConstant(StringValue(n.Name))), line)
	}
}

// compileRK compiles e and returns an RK-encoded operand for it: a
// constant-foldable expression is interned directly into the pool, a
// local name is used by register reference, and anything else is
// compiled into a fresh temporary register.
func (c *compiler) compileRK(fs *funcState, e luaast.Expr) uint16 {
	if v, ok := foldExpr(e); ok {
		return c.rkConstant(fs, v, fs.line(e.Pos()))
	}
	if n, ok := e.(*luaast.NameExpr); ok {
		if res := fs.resolve(n.Name); res.kind == resolveLocal {
			return uint16(res.index)
		}
	}
	tmp := fs.freeReg
	c.compileExprTo(fs, e, tmp)
	fs.reserveRegisters(1)
	return uint16(tmp)
}

// rkConstant interns k and returns an RK operand for it. A constant
// whose pool index has outgrown the 8-bit RK index space is loaded
// into a temporary register instead.
func (c *compiler) rkConstant(fs *funcState, k Value, line int) uint16 {
	idx := fs.proto.addConstant(k)
	if idx < bitRK {
		return RKAsConstant(uint16(idx))
	}
	tmp := fs.freeReg
	fs.emitABx(OpLoadK, tmp, int32(idx), line)
	fs.reserveRegisters(1)
	return uint16(tmp)
}

func (c *compiler) compileUnaryTo(fs *funcState, e *luaast.UnaryExpr, dest uint8) {
	line := e.Position.Line
	if v, ok := foldExpr(e); ok {
		fs.emitABx(OpLoadK, dest, int32(fs.proto.addConstant(v)), line)
		return
	}
	base := fs.freeReg
	c.compileExprTo(fs, e.Operand, base)
	fs.reserveRegisters(1)

	var op OpCode
	switch e.Op {
	case luaast.OpNeg:
		op = OpUNM
	case luaast.OpNot:
		op = OpNot
	case luaast.OpLen:
		op = OpLen
	default:
		c.fail(e.Position, "unsupported unary operator")
		return
	}
	fs.emitABC(op, dest, uint16(base), 0, line)
	fs.freeReg = base
}

func (c *compiler) compileBinaryTo(fs *funcState, e *luaast.BinaryExpr, dest uint8) {
	if v, ok := foldBinary(e); ok {
		fs.emitABx(OpLoadK, dest, int32(fs.proto.addConstant(v)), e.Position.Line)
		return
	}

	switch e.Op {
	case luaast.OpAnd:
		c.compileAndTo(fs, e, dest)
		return
	case luaast.OpOr:
		c.compileOrTo(fs, e, dest)
		return
	case luaast.OpConcat:
		c.compileConcatTo(fs, e, dest)
		return
	}

	line := e.Position.Line
	base := fs.freeReg

	switch e.Op {
	case luaast.OpEq, luaast.OpNotEq:
		left := c.compileRK(fs, e.Left)
		right := c.compileRK(fs, e.Right)
		fs.freeReg = base
		c.compileCompareTo(fs, OpEQ, e.Op == luaast.OpEq, left, right, dest, line)
	case luaast.OpLess:
		left := c.compileRK(fs, e.Left)
		right := c.compileRK(fs, e.Right)
		fs.freeReg = base
		c.compileCompareTo(fs, OpLT, true, left, right, dest, line)
	case luaast.OpLessEq:
		left := c.compileRK(fs, e.Left)
		right := c.compileRK(fs, e.Right)
		fs.freeReg = base
		c.compileCompareTo(fs, OpLE, true, left, right, dest, line)
	case luaast.OpGreater:
		left := c.compileRK(fs, e.Left)
		right := c.compileRK(fs, e.Right)
		fs.freeReg = base
		// a > b compiles as b < a: Lua 5.1 has no dedicated GT/GE opcodes.
		c.compileCompareTo(fs, OpLT, true, right, left, dest, line)
	case luaast.OpGreaterEq:
		left := c.compileRK(fs, e.Left)
		right := c.compileRK(fs, e.Right)
		fs.freeReg = base
		c.compileCompareTo(fs, OpLE, true, right, left, dest, line)
	default:
		left := c.compileRK(fs, e.Left)
		right := c.compileRK(fs, e.Right)
		fs.freeReg = base
		var op OpCode
		switch e.Op {
		case luaast.OpAdd:
			op = OpAdd
		case luaast.OpSub:
			op = OpSub
		case luaast.OpMul:
			op = OpMul
		case luaast.OpDiv:
			op = OpDiv
		case luaast.OpMod:
			op = OpMod
		case luaast.OpPow:
			op = OpPow
		default:
			c.fail(e.Position, "unsupported binary operator")
			return
		}
		fs.emitABC(op, dest, left, right, line)
	}
}

// compileCompareTo emits the canonical EQ/LT/LE-then-LOADBOOL-pair
// idiom for embedding a relational result in a value register: the
// comparison skips the following jump unless its outcome matches A, so
// a true result jumps to the LOADBOOL 1 and a false one falls through
// to the LOADBOOL 0; exactly one of the two LOADBOOL instructions
// executes.
func (c *compiler) compileCompareTo(fs *funcState, op OpCode, wantTrue bool, left, right uint16, dest uint8, line int) {
	a := uint16(0)
	if wantTrue {
		a = 1
	}
	fs.emitABC(op, uint8(a), left, right, line)
	matchJump := fs.emitJump(line)
	fs.emitABC(OpLoadBool, dest, 0, 0, line)
	skipJump := fs.emitJump(line)
	fs.patchJumpHere(matchJump)
	fs.emitABC(OpLoadBool, dest, 1, 0, line)
	fs.patchJumpHere(skipJump)
}

// compileAndTo and compileOrTo use TESTSET to short-circuit without a
// separate boolean-coercion pass: the left operand's own value (not
// its truthiness) becomes the result when it determines the outcome.
func (c *compiler) compileAndTo(fs *funcState, e *luaast.BinaryExpr, dest uint8) {
	line := e.Position.Line
	c.compileExprTo(fs, e.Left, dest)
	fs.emitABC(OpTestSet, dest, uint16(dest), 0, line)
	skip := fs.emitJump(line)
	c.compileExprTo(fs, e.Right, dest)
	fs.patchJumpHere(skip)
}

func (c *compiler) compileOrTo(fs *funcState, e *luaast.BinaryExpr, dest uint8) {
	line := e.Position.Line
	c.compileExprTo(fs, e.Left, dest)
	fs.emitABC(OpTestSet, dest, uint16(dest), 1, line)
	skip := fs.emitJump(line)
	c.compileExprTo(fs, e.Right, dest)
	fs.patchJumpHere(skip)
}

// compileConcatTo flattens a right-associative chain of `..` into a
// single multi-register CONCAT, matching how the parser nests
// concatenation (a..b..c parses as a..(b..c)).
func (c *compiler) compileConcatTo(fs *funcState, e *luaast.BinaryExpr, dest uint8) {
	var operands []luaast.Expr
	var flatten func(luaast.Expr)
	flatten = func(x luaast.Expr) {
		if b, ok := x.(*luaast.BinaryExpr); ok && b.Op == luaast.OpConcat {
			flatten(b.Left)
			flatten(b.Right)
			return
		}
		operands = append(operands, x)
	}
	flatten(e)

	base := fs.freeReg
	for i, operand := range operands {
		c.compileExprTo(fs, operand, base+uint8(i))
		fs.reserveRegisters(1)
	}
	fs.emitABC(OpConcat, dest, uint16(base), uint16(base+uint8(len(operands)-1)), e.Position.Line)
	fs.freeReg = base
}

// compileFunctionExprTo compiles body as a nested prototype and emits
// CLOSURE plus the MOVE/GETUPVAL pseudo-instructions describing how
// each of its upvalues is captured from the enclosing function.
func (c *compiler) compileFunctionExprTo(fs *funcState, body *luaast.FunctionBody, dest uint8) {
	child := c.compileFunctionBody(fs, body)
	if c.err != nil {
		return
	}
	idx := len(fs.proto.Functions)
	fs.proto.Functions = append(fs.proto.Functions, child.proto)
	fs.emitABx(OpClosure, dest, int32(idx), body.Position.Line)
	for _, uv := range child.proto.Upvalues {
		if uv.InStack {
			fs.emitABC(OpMove, 0, uint16(uv.Index), 0, body.Position.Line)
		} else {
			fs.emitABC(OpGetUpval, 0, uint16(uv.Index), 0, body.Position.Line)
		}
	}
}

// compileCall compiles a call or method-call expression so its
// function and arguments occupy consecutive registers starting at
// base, and emits CALL with the given C field (0 means "all
// results"; otherwise nresults+1).
func (c *compiler) compileCall(fs *funcState, call *luaast.CallExpr, base uint8, cField int) {
	c.compileCallOp(fs, call, base, cField, OpCall)
}

func (c *compiler) compileCallOp(fs *funcState, call *luaast.CallExpr, base uint8, cField int, op OpCode) {
	line := call.Position.Line
	c.compileExprTo(fs, call.Fn, base)
	fs.setFreeReg(base + 1)

	var argBase uint8
	extraArg := 0
	if call.Method != "" {
		key := c.rkConstant(fs, StringValue(call.Method), line)
		fs.emitABC(OpSelf, base, uint16(base), key, line)
		fs.setFreeReg(base + 2)
		argBase = base + 2
		extraArg = 1
	} else {
		argBase = base + 1
	}

	nargs := len(call.Args)
	bField := nargs + 1 + extraArg
	switch {
	case nargs > 0 && isMultiExpr(call.Args[nargs-1]):
		bField = 0
		c.compileExprListTo(fs, call.Args, argBase, -1)
	case nargs > 0:
		c.compileExprListTo(fs, call.Args, argBase, nargs)
	}
	fs.emitABC(op, base, uint16(bField), uint16(cField), line)
	fs.setFreeReg(base + 1)
}

// compileTableExprTo emits a table constructor: a NEWTABLE sized by
// the array/hash split, SETLIST flushes of at most listItemsPerFlush
// array-style entries at a time (with the last entry expanding if it
// is a call or vararg), and a SETTABLE per record/computed-key entry.
func (c *compiler) compileTableExprTo(fs *funcState, e *luaast.TableExpr, dest uint8) {
	line := e.Position.Line
	var arrayExprs []luaast.Expr
	for _, f := range e.Fields {
		if f.Key == nil {
			arrayExprs = append(arrayExprs, f.Value)
		}
	}
	// The table is built at the register frontier so SETLIST's value
	// run sits directly above it, then moved into dest if the caller
	// wanted it somewhere lower (e.g. a pinned local slot).
	tbl := fs.freeReg
	fs.emitABC(OpNewTable, tbl, encodeFBField(len(arrayExprs)), encodeFBField(len(e.Fields)-len(arrayExprs)), line)
	fs.reserveRegisters(1)
	valueBase := fs.freeReg

	for flush := 0; flush*listItemsPerFlush < len(arrayExprs); flush++ {
		batch := arrayExprs[flush*listItemsPerFlush:]
		if len(batch) > listItemsPerFlush {
			batch = batch[:listItemsPerFlush]
		}
		lastBatch := (flush+1)*listItemsPerFlush >= len(arrayExprs)

		want := len(batch)
		multi := lastBatch && isMultiExpr(batch[len(batch)-1])
		if multi {
			want = -1
		}
		c.compileExprListTo(fs, batch, valueBase, want)
		b := uint16(len(batch) + 1)
		if multi {
			b = 0
		}
		fs.emitABC(OpSetList, tbl, b, uint16(flush+1), line)
		fs.freeReg = valueBase
	}

	for _, f := range e.Fields {
		if f.Key == nil {
			continue
		}
		keyReg := c.compileRK(fs, f.Key)
		valReg := fs.freeReg
		c.compileExprTo(fs, f.Value, valReg)
		fs.emitABC(OpSetTable, tbl, keyReg, uint16(valReg), line)
		fs.freeReg = valueBase
	}

	if tbl != dest {
		fs.emitABC(OpMove, dest, uint16(tbl), 0, line)
	}
	fs.freeReg = tbl
}

// listItemsPerFlush is SETLIST's batch size: the C operand numbers
// which batch of this many array slots a flush fills.
const listItemsPerFlush = 50

// encodeFBField encodes a table size hint in NEWTABLE's "floating
// byte" form: values below 8 are exact, larger ones round up to
// (mantissa in 8..15) << exponent so any hint fits the 9-bit field.
func encodeFBField(x int) uint16 {
	e := 0
	for x >= 16 {
		x = (x + 1) >> 1
		e++
	}
	if x < 8 {
		return uint16(x)
	}
	return uint16(((e + 1) << 3) | (x - 8))
}
