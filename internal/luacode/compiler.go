package luacode

import (
	"fmt"
	"io"

	"lua51.dev/vm/internal/luaast"
)

// CompileError wraps a compile-time failure (a limit exceeded, an
// invalid assignment target) with the source position that caused it.
type CompileError struct {
	Source   Source
	Position luaast.Position
	Msg      string
}

func (e *CompileError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%v: %s", e.Position, e.Msg)
	}
	return fmt.Sprintf("%s:%v: %s", e.Source.DisplayName(), e.Position, e.Msg)
}

// Compile parses and compiles Lua 5.1 source into a main chunk
// Prototype. The main chunk is always vararg.
func Compile(name Source, r io.ByteScanner) (*Prototype, error) {
	body, err := luaast.Parse(luaast.Source(name), r)
	if err != nil {
		return nil, err
	}
	return CompileAST(name, body)
}

// CompileAST lowers an already-parsed chunk into a Prototype.
func CompileAST(name Source, body *luaast.FunctionBody) (*Prototype, error) {
	c := &compiler{source: name}
	fs := c.compileFunctionBody(nil, body)
	if c.err != nil {
		return nil, c.err
	}
	return fs.proto, nil
}

// compiler holds state shared across the whole compilation of one
// chunk: the first error encountered (compilation stops lowering
// further statements once set, mirroring how a single bad statement
// poisons the rest of upstream Lua's one-pass compiler) and the
// chunk's source name for error messages.
type compiler struct {
	source Source
	err    error
}

func (c *compiler) fail(pos luaast.Position, format string, args ...any) {
	if c.err == nil {
		c.err = &CompileError{Source: c.source, Position: pos, Msg: fmt.Sprintf(format, args...)}
	}
}

func (c *compiler) compileFunctionBody(parent *funcState, body *luaast.FunctionBody) *funcState {
	fs := newFuncState(parent, c.source, body.Position.Line)
	fs.proto.LastLineDefined = body.EndLine
	fs.proto.IsVararg = body.IsVararg
	fs.proto.NumParams = uint8(len(body.Params))

	if fs.nestingDepth() > maxNesting {
		c.fail(body.Position, "function nesting too deep")
		return fs
	}

	fs.enterBlock(false)
	for _, param := range body.Params {
		c.declareLocal(fs, param, body.Position)
	}
	c.compileBlock(fs, body.Body)
	fs.leaveBlock()

	if len(fs.proto.Upvalues) > maxUpvalues {
		c.fail(body.Position, "too many upvalues (limit is %d)", maxUpvalues)
	}

	// Every prototype ends with an implicit `return` so the VM's
	// RETURN handling never runs off the end of Code.
	fs.emitABC(OpReturn, 0, 1, 0, fs.prevLine)
	return fs
}

// declareLocal declares a local through fs, enforcing the per-function
// local variable limit.
func (c *compiler) declareLocal(fs *funcState, name string, pos luaast.Position) uint8 {
	if len(fs.actives) >= maxLocals {
		c.fail(pos, "too many local variables (limit is %d)", maxLocals)
	}
	return fs.declareLocal(name)
}

func (c *compiler) compileBlock(fs *funcState, b *luaast.Block) {
	for _, stmt := range b.Stmts {
		if c.err != nil {
			return
		}
		c.compileStmt(fs, stmt)
	}
}

func (c *compiler) compileStmt(fs *funcState, stmt luaast.Stmt) {
	fs.line(stmt.Pos()) // refresh prevLine for line-info stamping
	switch s := stmt.(type) {
	case *luaast.LocalStmt:
		c.compileLocal(fs, s)
	case *luaast.AssignStmt:
		c.compileAssign(fs, s)
	case *luaast.CallStmt:
		base := fs.freeReg
		c.compileCall(fs, s.Call.(*luaast.CallExpr), base, 1)
		fs.freeReg = base
	case *luaast.DoStmt:
		fs.enterBlock(false)
		c.compileBlock(fs, s.Body)
		fs.leaveBlock()
	case *luaast.WhileStmt:
		c.compileWhile(fs, s)
	case *luaast.RepeatStmt:
		c.compileRepeat(fs, s)
	case *luaast.IfStmt:
		c.compileIf(fs, s, nil)
	case *luaast.NumericForStmt:
		c.compileNumericFor(fs, s)
	case *luaast.GenericForStmt:
		c.compileGenericFor(fs, s)
	case *luaast.FunctionStmt:
		c.compileFunctionStmt(fs, s)
	case *luaast.LocalFunctionStmt:
		c.compileLocalFunctionStmt(fs, s)
	case *luaast.ReturnStmt:
		c.compileReturn(fs, s)
	case *luaast.BreakStmt:
		c.compileBreak(fs, s)
	case *luaast.ElseBlock:
		fs.enterBlock(false)
		c.compileBlock(fs, s.Body)
		fs.leaveBlock()
	default:
		c.fail(stmt.Pos(), "unsupported statement %T", stmt)
	}
}

func (c *compiler) compileBreak(fs *funcState, s *luaast.BreakStmt) {
	loop := fs.enclosingLoop()
	if loop == nil {
		c.fail(s.Position, "break outside a loop")
		return
	}
	// Jumping out of the loop skips the per-iteration CLOSE the loop
	// blocks would run, so close the whole loop's register range here
	// if anything in it was captured.
	for b := fs.block; b != nil; b = b.parent {
		if b.needsClose {
			fs.emitABC(OpClose, loop.firstFreeReg, 0, 0, s.Position.Line)
			break
		}
		if b == loop {
			break
		}
	}
	pc := fs.emitJump(s.Position.Line)
	loop.breakJumps = append(loop.breakJumps, pc)
}

func (c *compiler) compileLocal(fs *funcState, s *luaast.LocalStmt) {
	base := fs.freeReg
	n := len(s.Names)
	c.compileExprListTo(fs, s.Init, base, n)

	// The initializers landed in [base, base+n); pin each name to its
	// slot. Declaring after compiling the initializer list keeps a
	// same-named outer variable visible inside it.
	fs.freeReg = base
	for _, name := range s.Names {
		c.declareLocal(fs, name, s.Position)
	}
}

// compileExprListTo compiles exprs into registers starting at base.
// If want is negative, it compiles "as many values as exprs
// naturally produce": every expression but the last is truncated to
// one value, and the last expands fully if it is a call or `...`.
// If want is non-negative, the result is adjusted to exactly want
// values in registers [base, base+want): extra expressions are still
// evaluated for their side effects and discarded, and a shortfall is
// padded with nil.
func (c *compiler) compileExprListTo(fs *funcState, exprs []luaast.Expr, base uint8, want int) {
	if len(exprs) == 0 {
		if want > 0 {
			fs.loadNil(base, base+uint8(want)-1, fs.prevLine)
			fs.setFreeReg(base + uint8(want))
		}
		return
	}

	n := len(exprs)
	for i := 0; i < n-1; i++ {
		dest := base + uint8(i)
		c.compileExprTo(fs, exprs[i], dest)
		fs.setFreeReg(dest + 1)
	}

	last := exprs[n-1]
	lastDest := base + uint8(n-1)
	produced := n - 1

	remaining := -1
	if want >= 0 {
		remaining = want - produced
		if remaining < 0 {
			remaining = 0
		}
	}

	switch le := last.(type) {
	case *luaast.CallExpr:
		cField := 0
		if remaining >= 0 {
			cField = remaining + 1
		}
		c.compileCall(fs, le, lastDest, cField)
	case *luaast.VarargExpr:
		b := 0
		if remaining >= 0 {
			b = remaining + 1
		}
		fs.emitABC(OpVararg, lastDest, uint16(b), 0, le.Position.Line)
	default:
		c.compileExprTo(fs, last, lastDest)
		fs.setFreeReg(lastDest + 1)
		if remaining > 1 {
			fs.loadNil(lastDest+1, base+uint8(want)-1, fs.prevLine)
		}
	}
	if want >= 0 {
		fs.setFreeReg(base + uint8(want))
	}
}

func (c *compiler) compileAssign(fs *funcState, s *luaast.AssignStmt) {
	base := fs.freeReg
	c.compileExprListTo(fs, s.RHS, base, len(s.LHS))

	for i, target := range s.LHS {
		src := base + uint8(i)
		line := target.Pos().Line
		switch t := target.(type) {
		case *luaast.NameExpr:
			c.assignName(fs, t, src, line)
		case *luaast.IndexExpr:
			objReg := fs.freeReg
			c.compileExprTo(fs, t.Object, objReg)
			fs.reserveRegisters(1)
			key := c.compileRK(fs, t.Key)
			fs.emitABC(OpSetTable, objReg, key, uint16(src), line)
			fs.freeReg = objReg
		default:
			c.fail(target.Pos(), "cannot assign to this expression")
		}
	}
	fs.freeReg = base
}

func (c *compiler) assignName(fs *funcState, n *luaast.NameExpr, src uint8, line int) {
	switch res := fs.resolve(n.Name); res.kind {
	case resolveLocal:
		fs.emitABC(OpMove, res.index, uint16(src), 0, line)
	case resolveUpvalue:
		fs.emitABC(OpSetUpval, src, uint16(res.index), 0, line)
	default:
		fs.emitABx(OpSetGlobal, src, int32(fs.proto.addConstant(StringValue(n.Name))), line)
	}
}

func (c *compiler) compileFunctionStmt(fs *funcState, s *luaast.FunctionStmt) {
	var target luaast.Expr = &luaast.NameExpr{Position: s.Position, Name: s.Target[0]}
	for _, field := range s.Target[1:] {
		target = &luaast.IndexExpr{Position: s.Position, Object: target, Key: &luaast.StringExpr{Position: s.Position, Value: field}}
	}
	if s.Method != "" {
		target = &luaast.IndexExpr{Position: s.Position, Object: target, Key: &luaast.StringExpr{Position: s.Position, Value: s.Method}}
	}
	assign := &luaast.AssignStmt{
		Position: s.Position,
		LHS:      []luaast.Expr{target},
		RHS:      []luaast.Expr{&luaast.FunctionExpr{Body: s.Body}},
	}
	c.compileAssign(fs, assign)
}

func (c *compiler) compileLocalFunctionStmt(fs *funcState, s *luaast.LocalFunctionStmt) {
	// The local is declared before the body is compiled so the
	// function can call itself recursively through its own slot.
	reg := c.declareLocal(fs, s.Name, s.Position)
	c.compileFunctionExprTo(fs, s.Body, reg)
}

func (c *compiler) compileReturn(fs *funcState, s *luaast.ReturnStmt) {
	base := fs.freeReg
	if len(s.Exprs) == 1 {
		if call, ok := s.Exprs[0].(*luaast.CallExpr); ok {
			// `return f(...)` is a tail call: the frame is reused, so
			// the RETURN after it only documents the call boundary.
			c.compileCallOp(fs, call, base, 0, OpTailCall)
			fs.emitABC(OpReturn, base, 0, 0, s.Position.Line)
			return
		}
	}
	c.compileExprListTo(fs, s.Exprs, base, len(s.Exprs))
	fs.emitABC(OpReturn, base, uint16(len(s.Exprs)+1), 0, s.Position.Line)
}

func (c *compiler) compileWhile(fs *funcState, s *luaast.WhileStmt) {
	top := len(fs.proto.Code)
	reg := fs.freeReg
	c.compileExprTo(fs, s.Cond, reg)
	fs.emitABC(OpTest, reg, 0, 0, s.Position.Line)
	exitJump := fs.emitJump(s.Position.Line)

	fs.enterBlock(true)
	c.compileBlock(fs, s.Body)
	breaks := fs.leaveBlock()

	backJump := fs.emitJump(s.Position.Line)
	fs.patchJumpTo(backJump, top)
	fs.patchJumpHere(exitJump)
	fs.patchListHere(breaks)
	fs.freeReg = reg
}

func (c *compiler) compileRepeat(fs *funcState, s *luaast.RepeatStmt) {
	top := len(fs.proto.Code)
	fs.enterBlock(true)
	c.compileBlock(fs, s.Body)

	// The until condition sees the body's locals, so the block stays
	// open while it compiles; captured locals are closed before the
	// conditional back jump (CLOSE converts the upvalues but leaves
	// the registers themselves readable).
	reg := fs.freeReg
	c.compileExprTo(fs, s.Cond, reg)
	if fs.block.needsClose {
		fs.emitABC(OpClose, fs.block.firstFreeReg, 0, 0, s.Position.Line)
	}
	fs.emitABC(OpTest, reg, 0, 0, s.Position.Line)
	backJump := fs.emitJump(s.Position.Line)
	fs.patchJumpTo(backJump, top)

	breaks := fs.leaveBlock()
	fs.patchListHere(breaks)
	fs.freeReg = reg
}

func (c *compiler) compileIf(fs *funcState, s *luaast.IfStmt, endJumps *[]int) {
	ownJumps := endJumps == nil
	var jumps []int
	if ownJumps {
		endJumps = &jumps
	}

	reg := fs.freeReg
	c.compileExprTo(fs, s.Cond, reg)
	fs.emitABC(OpTest, reg, 0, 0, s.Position.Line)
	elseJump := fs.emitJump(s.Position.Line)
	fs.freeReg = reg

	fs.enterBlock(false)
	c.compileBlock(fs, s.Then)
	fs.leaveBlock()

	if s.Else != nil {
		skip := fs.emitJump(s.Position.Line)
		*endJumps = append(*endJumps, skip)
		fs.patchJumpHere(elseJump)
		switch e := s.Else.(type) {
		case *luaast.IfStmt:
			c.compileIf(fs, e, endJumps)
		case *luaast.ElseBlock:
			fs.enterBlock(false)
			c.compileBlock(fs, e.Body)
			fs.leaveBlock()
		}
	} else {
		fs.patchJumpHere(elseJump)
	}

	if ownJumps {
		fs.patchListHere(*endJumps)
	}
}

func (c *compiler) compileNumericFor(fs *funcState, s *luaast.NumericForStmt) {
	base := fs.freeReg
	c.compileExprTo(fs, s.Start, base)
	fs.reserveRegisters(1)
	c.compileExprTo(fs, s.Stop, base+1)
	fs.reserveRegisters(1)
	if s.Step != nil {
		c.compileExprTo(fs, s.Step, base+2)
	} else {
		fs.emitABx(OpLoadK, base+2, int32(fs.proto.addConstant(NumberValue(1))), s.Position.Line)
	}
	fs.reserveRegisters(1)

	prepPC := fs.emitABx(OpForPrep, base, 0, s.Position.Line)

	fs.enterBlock(true)
	c.declareLocal(fs, s.Name, s.Position) // pinned to base+3
	bodyStart := len(fs.proto.Code)
	c.compileBlock(fs, s.Body)
	breaks := fs.leaveBlock()

	// FORPREP jumps to the FORLOOP instruction itself, not into the
	// body: the first iteration's bookkeeping happens in FORLOOP.
	fs.patchJumpTo(prepPC, len(fs.proto.Code))
	loopPC := fs.emitABx(OpForLoop, base, 0, s.Position.Line)
	fs.patchJumpTo(loopPC, bodyStart)
	fs.patchListHere(breaks)
	fs.freeReg = base
}

func (c *compiler) compileGenericFor(fs *funcState, s *luaast.GenericForStmt) {
	base := fs.freeReg
	c.compileExprListTo(fs, s.Exprs, base, 3)

	jumpToTest := fs.emitJump(s.Position.Line)

	fs.enterBlock(true)
	for _, name := range s.Names {
		c.declareLocal(fs, name, s.Position)
	}
	bodyStart := len(fs.proto.Code)
	c.compileBlock(fs, s.Body)
	breaks := fs.leaveBlock()

	fs.patchJumpHere(jumpToTest)
	fs.emitABC(OpTForLoop, base, 0, uint16(len(s.Names)), s.Position.Line)
	backJump := fs.emitJump(s.Position.Line)
	fs.patchJumpTo(backJump, bodyStart)

	fs.patchListHere(breaks)
	fs.freeReg = base
}
