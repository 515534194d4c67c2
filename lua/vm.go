package lua

import (
	"math"

	"lua51.dev/vm/internal/luacode"
)

// exec runs the topmost (Lua) frame to completion, and every further
// Lua call it makes, without recursing into Go for a Lua-to-Lua call:
// CALL and TAILCALL simply refresh which frame "current" means and
// loop, the way the teacher's own dispatch loop does. A call into a
// host function or through a metamethod does recurse, via
// [State.prepareCall] and (for a Lua callee reached that way) a nested
// exec call.
func (s *State) exec() error {
	// entryDepth is the frame stack depth exec was called at; it
	// returns once the frame it was asked to run (and everything it
	// calls) has unwound back below this depth.
	entryDepth := len(s.frames) - 1

	for {
		frame := s.frame()
		closure := frame.closure
		proto := closure.proto
		base := frame.base

		instr := proto.Code[frame.pc]
		frame.pc++
		op := instr.OpCode()
		a := int(instr.ArgA())

		reg := func(i int) *Value { return &s.stack[base+i] }
		rk := func(i uint16) Value {
			if luacode.IsConstant(i) {
				return constantValue(proto.Constants[luacode.ConstantIndex(i)])
			}
			return s.stack[base+int(i)]
		}

		switch op {
		case luacode.OpMove:
			*reg(a) = *reg(int(instr.ArgB()))

		case luacode.OpLoadK:
			*reg(a) = constantValue(proto.Constants[instr.ArgBx()])

		case luacode.OpLoadBool:
			*reg(a) = booleanValue(instr.ArgB() != 0)
			if instr.ArgC() != 0 {
				frame.pc++
			}

		case luacode.OpLoadNil:
			b := int(instr.ArgB())
			for i := a; i <= b; i++ {
				*reg(i) = nil
			}

		case luacode.OpGetUpval:
			*reg(a) = *s.resolveUpvalue(closure.upvalues[instr.ArgB()])

		case luacode.OpSetUpval:
			*s.resolveUpvalue(closure.upvalues[instr.ArgB()]) = *reg(a)

		case luacode.OpGetGlobal:
			key := constantValue(proto.Constants[instr.ArgBx()])
			*reg(a) = s.globals.Get(key)

		case luacode.OpSetGlobal:
			key := constantValue(proto.Constants[instr.ArgBx()])
			s.globals.Set(key, *reg(a))

		case luacode.OpGetTable:
			v, err := s.index(*reg(int(instr.ArgB())), rk(instr.ArgC()))
			if err != nil {
				return err
			}
			*reg(a) = v

		case luacode.OpSetTable:
			if err := s.setIndex(*reg(a), rk(instr.ArgB()), rk(instr.ArgC())); err != nil {
				return err
			}

		case luacode.OpNewTable:
			*reg(a) = s.newTable(decodeFBField(instr.ArgB()), decodeFBField(instr.ArgC()))

		case luacode.OpSelf:
			recv := *reg(int(instr.ArgB()))
			key := rk(instr.ArgC())
			*reg(a + 1) = recv
			v, err := s.index(recv, key)
			if err != nil {
				return err
			}
			*reg(a) = v

		case luacode.OpAdd, luacode.OpSub, luacode.OpMul, luacode.OpDiv, luacode.OpMod, luacode.OpPow:
			v, err := s.arith(op, rk(instr.ArgB()), rk(instr.ArgC()))
			if err != nil {
				return err
			}
			*reg(a) = v

		case luacode.OpUNM:
			v := *reg(int(instr.ArgB()))
			if n, ok := ToNumber(v); ok {
				*reg(a) = numberValue(-n)
			} else {
				r, err := s.arithmeticMetamethod(mmUnm, v, v)
				if err != nil {
					return err
				}
				*reg(a) = r
			}

		case luacode.OpNot:
			*reg(a) = booleanValue(!ToBool(*reg(int(instr.ArgB()))))

		case luacode.OpLen:
			v, err := s.length(*reg(int(instr.ArgB())))
			if err != nil {
				return err
			}
			*reg(a) = v

		case luacode.OpConcat:
			b, c := int(instr.ArgB()), int(instr.ArgC())
			values := make([]Value, c-b+1)
			for i := range values {
				values[i] = *reg(b + i)
			}
			v, err := s.concatRange(values)
			if err != nil {
				return err
			}
			*reg(a) = v

		case luacode.OpJMP:
			frame.pc += int(instr.ArgSBx())

		case luacode.OpEQ:
			eq, err := s.equal(rk(instr.ArgB()), rk(instr.ArgC()))
			if err != nil {
				return err
			}
			if eq != (a != 0) {
				// __eq may have run a call that grew s.frames and
				// invalidated frame; re-fetch before mutating pc.
				s.frame().pc++
			}

		case luacode.OpLT:
			lt, err := s.less(rk(instr.ArgB()), rk(instr.ArgC()))
			if err != nil {
				return err
			}
			if lt != (a != 0) {
				s.frame().pc++
			}

		case luacode.OpLE:
			le, err := s.lessEqual(rk(instr.ArgB()), rk(instr.ArgC()))
			if err != nil {
				return err
			}
			if le != (a != 0) {
				s.frame().pc++
			}

		case luacode.OpTest:
			if ToBool(*reg(a)) != (instr.ArgC() != 0) {
				frame.pc++
			}

		case luacode.OpTestSet:
			v := *reg(int(instr.ArgB()))
			if ToBool(v) == (instr.ArgC() != 0) {
				*reg(a) = v
			} else {
				frame.pc++
			}

		case luacode.OpCall:
			nargs := decodeArgCount(instr.ArgB(), len(s.stack)-(base+a)-1)
			numResults := decodeResultCount(instr.ArgC())
			functionIndex := base + a
			s.setTop(functionIndex + 1 + nargs)
			isLua, err := s.prepareCall(functionIndex, numResults)
			if err != nil {
				return err
			}
			if isLua {
				continue // refresh frame/closure/base and keep looping in this exec
			}
			// A host call was fully serviced by prepareCall: its results
			// sit at R[A].. and, for a fixed result count, the register
			// window above them must be restored before the next
			// instruction touches it. A C of 0 instead leaves the top
			// marking the results for the following multi-value consumer.
			if numResults != MultiReturn {
				s.setTop(base + int(proto.MaxStackSize))
			}

		case luacode.OpTailCall:
			nargs := decodeArgCount(instr.ArgB(), len(s.stack)-(base+a)-1)
			functionIndex := base + a
			s.setTop(functionIndex + 1 + nargs)

			// Close every upvalue this frame owns, then splice the callee
			// and its arguments down into this frame's own function slot
			// so the call reuses it: a true tail call never grows the
			// Lua call-depth counter.
			s.closeUpvalues(base)
			callee := s.stack[functionIndex : functionIndex+1+nargs]
			copy(s.stack[frame.functionIndex:], callee)
			s.setTop(frame.functionIndex + len(callee))

			outerResults := frame.numResults
			outerFunctionIndex := frame.functionIndex
			s.frames = s.frames[:len(s.frames)-1]

			isLua, err := s.prepareCall(outerFunctionIndex, outerResults)
			if err != nil {
				return err
			}
			if isLua {
				if len(s.frames)-1 < entryDepth {
					// The tail call replaced the frame exec was entered
					// for; hand control back to our caller's exec/Call.
					return nil
				}
				continue
			}
			// The tail-called host function already returned, which also
			// completes this Lua function: control goes back to whoever
			// called it.
			if len(s.frames) <= entryDepth {
				return nil
			}
			if outerResults != MultiReturn {
				nf := s.frame()
				s.setTop(nf.base + int(nf.closure.proto.MaxStackSize))
			}

		case luacode.OpReturn:
			b := int(instr.ArgB())
			var numResults int
			if b == 0 {
				numResults = len(s.stack) - (base + a)
			} else {
				numResults = b - 1
			}
			s.closeUpvalues(base)
			s.setTop(base + a + numResults)
			fixedWant := frame.numResults != MultiReturn
			s.finishCall(base + a)
			if len(s.frames) <= entryDepth {
				return nil
			}
			if fixedWant {
				nf := s.frame()
				s.setTop(nf.base + int(nf.closure.proto.MaxStackSize))
			}

		case luacode.OpForPrep:
			initV, limitV, stepV, ok := forLoopOperands(reg, a)
			if !ok {
				return s.runtimeErrorf("'for' initial value must be a number")
			}
			*reg(a) = numberValue(initV - stepV)
			_ = limitV
			frame.pc += int(instr.ArgSBx())

		case luacode.OpForLoop:
			initV := float64((*reg(a)).(numberValue))
			limitV := float64((*reg(a + 1)).(numberValue))
			stepV := float64((*reg(a + 2)).(numberValue))
			next := initV + stepV
			cont := (stepV > 0 && next <= limitV) || (stepV <= 0 && next >= limitV)
			if cont {
				*reg(a) = numberValue(next)
				*reg(a + 3) = numberValue(next)
				frame.pc += int(instr.ArgSBx())
			}

		case luacode.OpTForLoop:
			c := int(instr.ArgC())
			callArgs := []Value{*reg(a + 1), *reg(a + 2)}
			results, err := s.call1Multi(*reg(a), callArgs, c)
			if err != nil {
				return err
			}
			for i := 0; i < c; i++ {
				*reg(a + 3 + i) = results[i]
			}
			if results[0] != nil {
				*reg(a + 2) = results[0]
			} else {
				// The iterator call above may have grown s.frames,
				// reallocating its backing array and invalidating frame;
				// re-fetch before mutating pc.
				s.frame().pc++ // skip the following JMP, ending the loop
			}

		case luacode.OpSetList:
			b := int(instr.ArgB())
			if b == 0 {
				b = len(s.stack) - (base + a) - 1
			}
			c := int(instr.ArgC())
			t := (*reg(a)).(*Table)
			for i := 1; i <= b; i++ {
				t.Set(numberValue((c-1)*listItemsPerFlush+i), *reg(a + i))
			}

		case luacode.OpClose:
			s.closeUpvalues(base + a)

		case luacode.OpClosure:
			childProto := proto.Functions[instr.ArgBx()]
			upvalues := make([]*Upvalue, len(childProto.Upvalues))
			for i, desc := range childProto.Upvalues {
				if desc.InStack {
					upvalues[i] = s.stackUpvalue(base + int(desc.Index))
				} else {
					upvalues[i] = closure.upvalues[desc.Index]
				}
				frame.pc++ // consume the MOVE/GETUPVAL pseudo-instruction
			}
			*reg(a) = s.newClosure(childProto, upvalues)

		case luacode.OpVararg:
			b := int(instr.ArgB())
			n := b - 1
			if b == 0 {
				n = frame.varargCount
				s.setTop(base + a + n)
			}
			for i := 0; i < n; i++ {
				if i < frame.varargCount {
					*reg(a + i) = s.stack[frame.varargBase+i]
				} else {
					*reg(a + i) = nil
				}
			}

		default:
			return s.runtimeErrorf("unimplemented opcode %s", op)
		}
	}
}

// constantValue converts a compiled constant into a runtime Value.
func constantValue(v luacode.Value) Value {
	if v.IsNil() {
		return nil
	}
	if b, ok := v.IsBool(); ok {
		return booleanValue(b)
	}
	if n, ok := v.IsNumber(); ok {
		return numberValue(n)
	}
	s, _ := v.IsString()
	return stringValue(s)
}

// arith dispatches one of the six arithmetic opcodes: the raw
// numeric path first (after Lua's string-to-number coercion), then the
// matching metamethod.
func (s *State) arith(op luacode.OpCode, x, y Value) (Value, error) {
	xn, xok := ToNumber(x)
	yn, yok := ToNumber(y)
	if xok && yok {
		switch op {
		case luacode.OpAdd:
			return numberValue(xn + yn), nil
		case luacode.OpSub:
			return numberValue(xn - yn), nil
		case luacode.OpMul:
			return numberValue(xn * yn), nil
		case luacode.OpDiv:
			return numberValue(xn / yn), nil
		case luacode.OpMod:
			return numberValue(xn - math.Floor(xn/yn)*yn), nil
		case luacode.OpPow:
			return numberValue(math.Pow(xn, yn)), nil
		}
	}
	return s.arithmeticMetamethod(arithMetamethodName(op), x, y)
}

func arithMetamethodName(op luacode.OpCode) string {
	switch op {
	case luacode.OpAdd:
		return mmAdd
	case luacode.OpSub:
		return mmSub
	case luacode.OpMul:
		return mmMul
	case luacode.OpDiv:
		return mmDiv
	case luacode.OpMod:
		return mmMod
	case luacode.OpPow:
		return mmPow
	default:
		return ""
	}
}

// decodeFBField decodes NEWTABLE's size-hint B/C fields: either an
// exact small count or a "floating byte" (mantissa<<exponent) form for
// larger hints. The compiler's encodeFBField uses the exact form for
// hints below 8 and the floating form above that.
func decodeFBField(x uint16) int {
	if x < 8 {
		return int(x)
	}
	mantissa := int(x&7) + 8
	exponent := int(x >> 3)
	return mantissa << (exponent - 1)
}

// decodeArgCount decodes CALL/TAILCALL's B field: B-1 explicit
// arguments, or (B==0) every value from the function's register up to
// the current stack top, whose count is passed in asTop.
func decodeArgCount(b uint16, asTop int) int {
	if b == 0 {
		return asTop
	}
	return int(b) - 1
}

// decodeResultCount decodes CALL's C field into the numResults a
// [callFrame] stores: C-1 explicit results, or [MultiReturn] for C==0.
func decodeResultCount(c uint16) int {
	if c == 0 {
		return MultiReturn
	}
	return int(c) - 1
}

// listItemsPerFlush is Lua 5.1's fixed SETLIST batch size (LFIELDS_PER_FLUSH).
const listItemsPerFlush = 50

// forLoopOperands reads FORPREP's three control registers, coercing
// them to numbers the way Lua 5.1's OP_FORPREP does.
func forLoopOperands(reg func(int) *Value, a int) (initV, limitV, stepV float64, ok bool) {
	in, ok1 := ToNumber(*reg(a))
	lim, ok2 := ToNumber(*reg(a + 1))
	step, ok3 := ToNumber(*reg(a + 2))
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, false
	}
	*reg(a) = numberValue(in)
	*reg(a + 1) = numberValue(lim)
	*reg(a + 2) = numberValue(step)
	return in, lim, step, true
}
