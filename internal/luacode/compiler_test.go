package luacode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func compile(t *testing.T, src string) *Prototype {
	t.Helper()
	proto, err := Compile("test", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Compile(%q) error: %v", src, err)
	}
	return proto
}

func TestCompileConstantFolding(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{"return 1 + 2 * 3", NumberValue(7)},
		{"return 2 ^ 3 ^ 2", NumberValue(512)},
		{"return -(4 + 1)", NumberValue(-5)},
		{"return 10 / 4", NumberValue(2.5)},
		{"return 7 % 3", NumberValue(1)},
		{"return 'a' .. 'b' .. 'c'", StringValue("abc")},
		{"return 1 .. 2", StringValue("12")},
		{"return 'x = ' .. 1.5", StringValue("x = 1.5")},
	}
	for _, test := range tests {
		proto := compile(t, test.src)
		if len(proto.Constants) != 1 || !proto.Constants[0].Equal(test.want) {
			t.Errorf("Compile(%q).Constants = %v; want exactly [%v]", test.src, proto.Constants, test.want)
		}
		if got := proto.Code[0].OpCode(); got != OpLoadK {
			t.Errorf("Compile(%q).Code[0] = %v; want a single LOADK", test.src, proto.Code[0])
		}
	}
}

func TestCompileDivisionByZeroFolds(t *testing.T) {
	// Per IEEE-754, constant division by zero is not a compile error.
	proto := compile(t, "return 1 / 0")
	n, ok := proto.Constants[0].IsNumber()
	if !ok || n <= 0 {
		t.Errorf("1/0 folded to %v; want +inf", proto.Constants[0])
	}
	proto = compile(t, "return 0 / 0")
	n, _ = proto.Constants[0].IsNumber()
	if n == n {
		t.Errorf("0/0 folded to %v; want NaN", proto.Constants[0])
	}
}

func TestCompileLocalPinning(t *testing.T) {
	proto := compile(t, "local a, b = 10, 20 return a + b")
	want := []Instruction{
		ABxInstruction(OpLoadK, 0, 0),
		ABxInstruction(OpLoadK, 1, 1),
		ABCInstruction(OpAdd, 2, 0, 1),
		ABCInstruction(OpReturn, 2, 2, 0),
		ABCInstruction(OpReturn, 0, 1, 0),
	}
	if diff := cmp.Diff(want, proto.Code); diff != "" {
		t.Errorf("instruction stream mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileArityAdjustment(t *testing.T) {
	// Three names, one initializer: the two extra slots load nil.
	proto := compile(t, "local a, b, c = 1")
	var found bool
	for _, instr := range proto.Code {
		if instr.OpCode() == OpLoadNil && instr.ArgA() == 1 && instr.ArgB() == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("missing LOADNIL 1 2 to pad the initializer list; code:\n%v", proto.Code)
	}
}

func TestCompileUpvalueResolution(t *testing.T) {
	proto := compile(t, `
		local x = 1
		local function outer()
			local function inner()
				return x
			end
			return inner
		end
	`)
	outer := proto.Functions[0]
	wantOuter := []UpvalueDescriptor{{Name: "x", InStack: true, Index: 0}}
	if diff := cmp.Diff(wantOuter, outer.Upvalues); diff != "" {
		t.Errorf("outer upvalues mismatch (-want +got):\n%s", diff)
	}

	inner := outer.Functions[0]
	wantInner := []UpvalueDescriptor{{Name: "x", InStack: false, Index: 0}}
	if diff := cmp.Diff(wantInner, inner.Upvalues); diff != "" {
		t.Errorf("inner upvalues mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileGlobalsUseConstants(t *testing.T) {
	proto := compile(t, "print(42)")
	if proto.Code[0].OpCode() != OpGetGlobal {
		t.Fatalf("Code[0] = %v; want GETGLOBAL", proto.Code[0])
	}
	name, ok := proto.Constants[proto.Code[0].ArgBx()].IsString()
	if !ok || name != "print" {
		t.Errorf("GETGLOBAL name constant = %v; want \"print\"", proto.Constants[proto.Code[0].ArgBx()])
	}
}

func TestCompileBreakOutsideLoop(t *testing.T) {
	_, err := Compile("test", strings.NewReader("break"))
	if err == nil {
		t.Fatal("break outside a loop compiled without error")
	}
}

func TestCompileBreakTargetsLoopExit(t *testing.T) {
	proto := compile(t, "while true do break end return 7")
	// Find the break JMP and verify it lands past the loop's back jump.
	var loopEnd int
	for pc, instr := range proto.Code {
		if instr.OpCode() == OpJMP && instr.ArgSBx() < 0 {
			loopEnd = pc + 1
		}
	}
	for pc, instr := range proto.Code {
		if instr.OpCode() == OpJMP && instr.ArgSBx() > 0 {
			if target := pc + 1 + int(instr.ArgSBx()); target < loopEnd {
				t.Errorf("forward JMP at pc %d targets %d, inside the loop ending at %d", pc, target, loopEnd)
			}
		}
	}
}

func TestCompileTooManyLocals(t *testing.T) {
	// Distinct names per line so each declaration stays active.
	src := ""
	for i := 0; i <= maxLocals; i++ {
		src += "local v" + itoa(i) + " = 1\n"
	}
	if _, err := Compile("test", strings.NewReader(src)); err == nil {
		t.Error("declaring more than maxLocals locals compiled without error")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestCompileMainChunkIsVararg(t *testing.T) {
	proto := compile(t, "return ...")
	if !proto.IsVararg {
		t.Error("main chunk compiled with IsVararg = false")
	}
}

func TestPrototypeBinaryRoundTrip(t *testing.T) {
	proto := compile(t, `
		local function add(a, b) return a + b end
		return add(2, 3)
	`)
	data, err := proto.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded := new(Prototype)
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	diff := cmp.Diff(proto, decoded,
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b Value) bool { return a.Equal(b) }),
	)
	if diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
