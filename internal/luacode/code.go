package luacode

// emit appends an instruction and its line-info entry, returning its
// program counter.
func (fs *funcState) emit(instr Instruction, line int) int {
	fs.proto.Code = append(fs.proto.Code, instr)
	fs.proto.LineInfo = append(fs.proto.LineInfo, int32(line))
	return len(fs.proto.Code) - 1
}

func (fs *funcState) emitABC(op OpCode, a uint8, b, c uint16, line int) int {
	return fs.emit(ABCInstruction(op, a, b, c), line)
}

func (fs *funcState) emitABx(op OpCode, a uint8, bx int32, line int) int {
	return fs.emit(ABxInstruction(op, a, bx), line)
}

// emitJump emits an unpatched JMP and returns its program counter.
func (fs *funcState) emitJump(line int) int {
	return fs.emitABx(OpJMP, 0, 0, line)
}

// patchJump sets the jump at pc to target the current end of the
// instruction stream.
func (fs *funcState) patchJumpHere(pc int) {
	fs.patchJumpTo(pc, len(fs.proto.Code))
}

// patchJumpTo sets the jump instruction at pc to land at target.
func (fs *funcState) patchJumpTo(pc, target int) {
	offset := int32(target - (pc + 1))
	fs.proto.Code[pc] = ABxInstruction(fs.proto.Code[pc].OpCode(), fs.proto.Code[pc].ArgA(), offset)
}

// patchList patches every jump in list to land at the current end of
// the instruction stream.
func (fs *funcState) patchListHere(list []int) {
	for _, pc := range list {
		fs.patchJumpHere(pc)
	}
}

// loadNil emits LOADNIL for the contiguous register range [from, to].
func (fs *funcState) loadNil(from, to uint8, line int) {
	if len(fs.proto.Code) > 0 {
		last := fs.proto.Code[len(fs.proto.Code)-1]
		if last.OpCode() == OpLoadNil && int(last.ArgB()) == int(from)-1 {
			fs.proto.Code[len(fs.proto.Code)-1] = ABCInstruction(OpLoadNil, last.ArgA(), uint16(to), 0)
			return
		}
	}
	fs.emitABC(OpLoadNil, from, uint16(to), 0, line)
}
