package luacode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Source identifies the origin of a chunk for error messages and
// debug info, e.g. "@myscript.lua" or "=stdin".
type Source string

// UnknownSource is used when a binary chunk carries no source name.
const UnknownSource Source = "?"

func (src Source) String() string {
	if src == "" {
		return string(UnknownSource)
	}
	return string(src)
}

// DisplayName formats src for an error-message prefix: a "@file"
// source displays as the bare filename, a "=name" source as the bare
// name, and literal source text as itself.
func (src Source) DisplayName() string {
	s := src.String()
	if len(s) > 0 && (s[0] == '@' || s[0] == '=') {
		return s[1:]
	}
	return s
}

// VariableKind distinguishes the role an upvalue entry plays. Lua 5.1
// has no const/close variable attributes (those are 5.4 additions),
// so this only ever takes one value; the type exists so the field
// reads the same way the bytecode format documents it.
type VariableKind uint8

// RegularVariable is the only VariableKind Lua 5.1 upvalues take.
const RegularVariable VariableKind = 0

// UpvalueDescriptor describes one upvalue slot of a [Prototype], per
// the scope/upvalue analyzer's resolution algorithm: InStack true
// means the upvalue captures a local of the immediately enclosing
// function (Index is that function's register slot); InStack false
// means it captures an upvalue of the immediately enclosing function
// (Index is that function's upvalue index).
type UpvalueDescriptor struct {
	Name    string
	InStack bool
	Index   uint8
}

// LocalVariable records the name and live range of a local variable,
// for debug info and for stack traces.
type LocalVariable struct {
	Name    string
	StartPC int
	EndPC   int
}

// LineInfo maps each instruction's program counter to the source line
// that produced it. len(LineInfo) == len(Prototype.Code).
type LineInfo []int32

// Prototype is a compiled Lua function: the bytecode, constants, and
// metadata the VM needs to run it, plus the child prototypes for any
// function literals nested directly inside it.
type Prototype struct {
	NumParams    uint8
	IsVararg     bool
	MaxStackSize uint8

	Constants []Value
	Code      []Instruction
	Functions []*Prototype
	Upvalues  []UpvalueDescriptor

	Source          Source
	LocalVariables  []LocalVariable
	LineInfo        LineInfo
	LineDefined     int
	LastLineDefined int
}

// IsMainChunk reports whether the prototype represents an entire
// parsed source file rather than a nested function.
func (p *Prototype) IsMainChunk() bool {
	return p.LineDefined == 0
}

// LocalName returns the name of the local variable register
// represents during execution of the instruction at pc, or the empty
// string if no local variable occupies that register at that point.
func (p *Prototype) LocalName(register uint8, pc int) string {
	for _, v := range p.LocalVariables {
		if v.StartPC > pc {
			break
		}
		if pc < v.EndPC {
			if register == 0 {
				return v.Name
			}
			register--
		}
	}
	return ""
}

func (p *Prototype) addConstant(k Value) int {
	for i, existing := range p.Constants {
		if existing.Equal(k) {
			return i
		}
	}
	p.Constants = append(p.Constants, k)
	return len(p.Constants) - 1
}

// ---- Binary chunk dump/load ----
//
// This is a self-contained binary chunk format for caching a compiled
// Prototype to disk and reloading it without re-lexing/parsing,
// modeled on upstream Lua's luac format (fixed header identifying the
// dialect and word sizes, followed by a recursive function dump) but
// using fixed-width fields throughout rather than luac's
// platform-native struct layout, so chunks are portable across
// architectures without a "size of size_t" negotiation.

// signature is the magic header identifying a dumped chunk.
const signature = "\x1bLua5.1\x00"

const (
	chunkNil = iota
	chunkFalse
	chunkTrue
	chunkNumber
	chunkString
)

// MarshalBinary encodes p as a binary chunk.
func (p *Prototype) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(signature)
	if err := dumpFunction(buf, p); err != nil {
		return nil, fmt.Errorf("marshal lua chunk: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a chunk produced by [Prototype.MarshalBinary].
func (p *Prototype) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var hdr [len(signature)]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("unmarshal lua chunk: %w", err)
	}
	if string(hdr[:]) != signature {
		return errors.New("unmarshal lua chunk: bad signature")
	}
	decoded, err := loadFunction(r)
	if err != nil {
		return fmt.Errorf("unmarshal lua chunk: %w", err)
	}
	*p = *decoded
	return nil
}

func dumpFunction(buf *bytes.Buffer, p *Prototype) error {
	dumpString(buf, string(p.Source))
	dumpInt(buf, p.LineDefined)
	dumpInt(buf, p.LastLineDefined)
	buf.WriteByte(p.NumParams)
	dumpBool(buf, p.IsVararg)
	buf.WriteByte(p.MaxStackSize)

	dumpInt(buf, len(p.Code))
	for _, instr := range p.Code {
		binary.Write(buf, binary.LittleEndian, uint32(instr))
	}

	dumpInt(buf, len(p.Constants))
	for _, k := range p.Constants {
		switch {
		case k.IsNil():
			buf.WriteByte(chunkNil)
		case func() bool { _, ok := k.IsBool(); return ok }():
			b, _ := k.IsBool()
			if b {
				buf.WriteByte(chunkTrue)
			} else {
				buf.WriteByte(chunkFalse)
			}
		case func() bool { _, ok := k.IsNumber(); return ok }():
			n, _ := k.IsNumber()
			buf.WriteByte(chunkNumber)
			binary.Write(buf, binary.LittleEndian, n)
		default:
			s, _ := k.IsString()
			buf.WriteByte(chunkString)
			dumpString(buf, s)
		}
	}

	dumpInt(buf, len(p.Upvalues))
	for _, uv := range p.Upvalues {
		dumpString(buf, uv.Name)
		dumpBool(buf, uv.InStack)
		buf.WriteByte(uv.Index)
	}

	dumpInt(buf, len(p.Functions))
	for _, child := range p.Functions {
		if err := dumpFunction(buf, child); err != nil {
			return err
		}
	}

	dumpInt(buf, len(p.LineInfo))
	for _, line := range p.LineInfo {
		binary.Write(buf, binary.LittleEndian, line)
	}

	dumpInt(buf, len(p.LocalVariables))
	for _, lv := range p.LocalVariables {
		dumpString(buf, lv.Name)
		dumpInt(buf, lv.StartPC)
		dumpInt(buf, lv.EndPC)
	}

	return nil
}

func dumpString(buf *bytes.Buffer, s string) {
	dumpInt(buf, len(s))
	buf.WriteString(s)
}

func dumpInt(buf *bytes.Buffer, n int) {
	binary.Write(buf, binary.LittleEndian, uint32(n))
}

func dumpBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func loadFunction(r *bytes.Reader) (*Prototype, error) {
	p := new(Prototype)

	src, err := loadString(r)
	if err != nil {
		return nil, err
	}
	p.Source = Source(src)

	if p.LineDefined, err = loadInt(r); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = loadInt(r); err != nil {
		return nil, err
	}
	if p.NumParams, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if p.IsVararg, err = loadBool(r); err != nil {
		return nil, err
	}
	if p.MaxStackSize, err = r.ReadByte(); err != nil {
		return nil, err
	}

	n, err := loadInt(r)
	if err != nil {
		return nil, err
	}
	p.Code = make([]Instruction, n)
	for i := range p.Code {
		var word uint32
		if err := binary.Read(r, binary.LittleEndian, &word); err != nil {
			return nil, err
		}
		p.Code[i] = Instruction(word)
	}

	n, err = loadInt(r)
	if err != nil {
		return nil, err
	}
	p.Constants = make([]Value, n)
	for i := range p.Constants {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case chunkNil:
			p.Constants[i] = NilValue
		case chunkFalse:
			p.Constants[i] = BoolValue(false)
		case chunkTrue:
			p.Constants[i] = BoolValue(true)
		case chunkNumber:
			var f float64
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, err
			}
			p.Constants[i] = NumberValue(f)
		case chunkString:
			s, err := loadString(r)
			if err != nil {
				return nil, err
			}
			p.Constants[i] = StringValue(s)
		default:
			return nil, fmt.Errorf("unknown constant tag %d", tag)
		}
	}

	n, err = loadInt(r)
	if err != nil {
		return nil, err
	}
	p.Upvalues = make([]UpvalueDescriptor, n)
	for i := range p.Upvalues {
		name, err := loadString(r)
		if err != nil {
			return nil, err
		}
		inStack, err := loadBool(r)
		if err != nil {
			return nil, err
		}
		index, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		p.Upvalues[i] = UpvalueDescriptor{Name: name, InStack: inStack, Index: index}
	}

	n, err = loadInt(r)
	if err != nil {
		return nil, err
	}
	p.Functions = make([]*Prototype, n)
	for i := range p.Functions {
		child, err := loadFunction(r)
		if err != nil {
			return nil, err
		}
		p.Functions[i] = child
	}

	n, err = loadInt(r)
	if err != nil {
		return nil, err
	}
	p.LineInfo = make(LineInfo, n)
	for i := range p.LineInfo {
		if err := binary.Read(r, binary.LittleEndian, &p.LineInfo[i]); err != nil {
			return nil, err
		}
	}

	n, err = loadInt(r)
	if err != nil {
		return nil, err
	}
	p.LocalVariables = make([]LocalVariable, n)
	for i := range p.LocalVariables {
		name, err := loadString(r)
		if err != nil {
			return nil, err
		}
		start, err := loadInt(r)
		if err != nil {
			return nil, err
		}
		end, err := loadInt(r)
		if err != nil {
			return nil, err
		}
		p.LocalVariables[i] = LocalVariable{Name: name, StartPC: start, EndPC: end}
	}

	return p, nil
}

func loadString(r *bytes.Reader) (string, error) {
	n, err := loadInt(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func loadInt(r *bytes.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func loadBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}
