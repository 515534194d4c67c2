package lua_test

import (
	"strings"
	"testing"

	"lua51.dev/vm/internal/luacode"
	"lua51.dev/vm/lua"
)

func compileToBinary(t *testing.T, src string) []byte {
	t.Helper()
	proto, err := luacode.Compile("binary", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data, err := proto.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return data
}

// newTestState returns a state with a print function that records each
// line it would have written.
func newTestState(t *testing.T) (*lua.State, *[]string) {
	t.Helper()
	s := lua.NewState()
	var lines []string
	s.Register("print", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		parts := make([]string, len(args))
		for i, v := range args {
			str, err := s.ToDisplayString(v)
			if err != nil {
				return nil, err
			}
			parts[i] = str
		}
		lines = append(lines, strings.Join(parts, "\t"))
		return nil, nil
	})
	return s, &lines
}

func runScript(t *testing.T, src string) []string {
	t.Helper()
	s, lines := newTestState(t)
	if _, err := s.DoString(src, "test"); err != nil {
		t.Fatalf("DoString(%q) error: %v", src, err)
	}
	return *lines
}

func checkOutput(t *testing.T, src string, want ...string) {
	t.Helper()
	got := runScript(t, src)
	if len(got) != len(want) {
		t.Fatalf("script %q printed %q; want %q", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("script %q line %d = %q; want %q", src, i, got[i], want[i])
		}
	}
}

func TestArithmetic(t *testing.T) {
	checkOutput(t, "print(1 + 2 * 3)", "7")
	checkOutput(t, "local a, b = 10, 4 print(a / b, a % b, a ^ 2, -a)", "2.5\t2\t100\t-10")
	checkOutput(t, `print("10" + 5)`, "15")
	checkOutput(t, "print(2 ^ 3 ^ 2)", "512")
}

func TestComparisons(t *testing.T) {
	checkOutput(t, "local a, b = 1, 2 print(a < b, a > b, a <= 1, a >= 2, a == 1, a ~= 1)",
		"true\tfalse\ttrue\tfalse\ttrue\tfalse")
	checkOutput(t, `local x, y = "abc", "abd" print(x < y, x == "abc")`, "true\ttrue")
}

func TestShortCircuit(t *testing.T) {
	// The chosen operand's own value is the result, and the unchosen
	// side must not be evaluated.
	checkOutput(t, `
		local evaluated = false
		local function boom() evaluated = true return true end
		local a = false and boom()
		local b = true or boom()
		print(a, b, evaluated)
	`, "false\ttrue\tfalse")
	checkOutput(t, `print(nil or "fallback", 1 and 2)`, "fallback\t2")
}

func TestRecursion(t *testing.T) {
	checkOutput(t, `
		local function fact(n)
			if n <= 1 then return 1 else return n * fact(n-1) end
		end
		print(fact(5))
	`, "120")
}

func TestClosureCounter(t *testing.T) {
	checkOutput(t, `
		local function mk()
			local x = 0
			return function() x = x + 1 return x end
		end
		local c = mk()
		print(c(), c(), c())
	`, "1\t2\t3")
}

func TestClosureCapturesVariableNotValue(t *testing.T) {
	checkOutput(t, `
		local x = 1
		local g = function() return x end
		x = 2
		print(g())
	`, "2")
}

func TestSharedUpvalue(t *testing.T) {
	checkOutput(t, `
		local function mk()
			local n = 0
			local function inc() n = n + 1 end
			local function get() return n end
			return inc, get
		end
		local inc, get = mk()
		inc() inc()
		print(get())
	`, "2")
}

func TestLoopIterationsCaptureDistinctVariables(t *testing.T) {
	checkOutput(t, `
		local fns = {}
		for i = 1, 3 do
			fns[i] = function() return i end
		end
		print(fns[1](), fns[2](), fns[3]())
	`, "1\t2\t3")
	checkOutput(t, `
		local fns = {}
		local i = 1
		while i <= 3 do
			local x = i * 10
			fns[i] = function() return x end
			i = i + 1
		end
		print(fns[1](), fns[2](), fns[3]())
	`, "10\t20\t30")
}

func TestMultipleReturnAdjustment(t *testing.T) {
	checkOutput(t, `
		local function two() return 1, 2 end
		local function none() end
		local a, b = two()
		local c, d = none()
		local e = two()
		print(a, b, c, d, e)
	`, "1\t2\tnil\tnil\t1")
	checkOutput(t, `local a, b = (function() return 1, 2 end)() print(a + b)`, "3")
	// Parentheses truncate a multi-value expression to one value.
	checkOutput(t, `
		local function two() return 1, 2 end
		local a, b = (two())
		print(a, b)
	`, "1\tnil")
}

func TestVararg(t *testing.T) {
	checkOutput(t, `
		local function f(...)
			local a, b = ...
			return a + b
		end
		print(f(3, 4))
	`, "7")
	checkOutput(t, `
		local function g(...) return ... end
		print(g(1, 2, 3))
	`, "1\t2\t3")
	checkOutput(t, `
		local function count(x, ...)
			local _, n = x, 0
			return x
		end
		print(count(9, "extra"))
	`, "9")
}

func TestNumericFor(t *testing.T) {
	checkOutput(t, `
		local s = 0
		for i = 1, 5 do s = s + i end
		print(s)
	`, "15")
	checkOutput(t, `
		local s = 0
		for i = 10, 1, -2 do s = s + i end
		print(s)
	`, "30")
	checkOutput(t, `
		local t = {10, 20, 30}
		local s = 0
		for i = 1, #t do s = s + t[i] end
		print(s)
	`, "60")
}

func TestGenericForWithHostIterator(t *testing.T) {
	s, lines := newTestState(t)
	s.Register("range", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		limit, _ := lua.ToNumber(args[0])
		iter := s.NewFunction("range iterator", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
			prev, _ := lua.ToNumber(args[1])
			if prev >= limit {
				return []lua.Value{nil}, nil
			}
			return []lua.Value{lua.Number(prev + 1)}, nil
		})
		return []lua.Value{iter, nil, lua.Number(0)}, nil
	})
	if _, err := s.DoString(`
		local sum = 0
		for i in range(4) do sum = sum + i end
		print(sum)
	`, "test"); err != nil {
		t.Fatal(err)
	}
	if len(*lines) != 1 || (*lines)[0] != "10" {
		t.Errorf("output = %q; want [\"10\"]", *lines)
	}
}

func TestWhileRepeatBreak(t *testing.T) {
	checkOutput(t, `
		local i = 0
		while true do
			i = i + 1
			if i == 3 then break end
		end
		print(i)
	`, "3")
	checkOutput(t, `
		local i = 0
		repeat i = i + 1 until i >= 4
		print(i)
	`, "4")
	// break exits only the innermost loop.
	checkOutput(t, `
		local n = 0
		for i = 1, 3 do
			for j = 1, 10 do
				if j == 2 then break end
				n = n + 1
			end
		end
		print(n)
	`, "3")
}

func TestTables(t *testing.T) {
	checkOutput(t, `
		local t = {10, 20, 30, x = "ex", [5] = "five"}
		print(t[1], t[3], t.x, t[5], #t)
	`, "10\t30\tex\tfive\t3")
	checkOutput(t, `
		local t = {}
		t.a = 1
		t["b"] = 2
		t.a = t.a + t.b
		print(t.a)
	`, "3")
	checkOutput(t, `
		local t = {}
		for i = 1, 100 do t[i] = i * 2 end
		print(#t, t[100])
	`, "100\t200")
}

func TestMethodCallSugar(t *testing.T) {
	checkOutput(t, `
		local account = {balance = 100}
		function account:deposit(n)
			self.balance = self.balance + n
		end
		account:deposit(50)
		print(account.balance)
	`, "150")
}

func TestStringConcat(t *testing.T) {
	checkOutput(t, `
		local n = 2
		print("v=" .. n)
		local a, b, c = "x", "y", "z"
		print(a .. b .. c)
	`, "v=2", "xyz")
}

func TestLength(t *testing.T) {
	checkOutput(t, `print(#"hello")`, "5")
}

func TestSwap(t *testing.T) {
	checkOutput(t, `
		local a, b = 1, 2
		a, b = b, a
		print(a, b)
	`, "2\t1")
}

func TestTailCallDoesNotGrowStack(t *testing.T) {
	// Well past maxCallDepth: only a genuine tail call survives this.
	checkOutput(t, `
		local function loop(n)
			if n == 0 then return "done" end
			return loop(n - 1)
		end
		print(loop(10000))
	`, "done")
}

func TestDeepRecursionOverflows(t *testing.T) {
	s, _ := newTestState(t)
	_, err := s.DoString(`
		local function f(n) return 1 + f(n + 1) end
		return f(1)
	`, "test")
	if err == nil {
		t.Fatal("unbounded non-tail recursion did not error")
	}
	if !strings.Contains(err.Error(), "stack overflow") {
		t.Errorf("error = %v; want stack overflow", err)
	}
}

func TestIndexMetamethod(t *testing.T) {
	s, lines := newTestState(t)
	mt := s.NewTableValue(0, 1)
	mt.Set(lua.String("__index"), s.NewFunction("default", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		return []lua.Value{lua.String("default:" + lua.ToStringValue(args[1]))}, nil
	}))
	obj := s.NewTableValue(0, 1)
	obj.Set(lua.String("present"), lua.Number(1))
	obj.SetMetatable(mt)
	s.SetGlobal("obj", obj)

	if _, err := s.DoString("print(obj.present, obj.missing)", "test"); err != nil {
		t.Fatal(err)
	}
	if want := "1\tdefault:missing"; len(*lines) != 1 || (*lines)[0] != want {
		t.Errorf("output = %q; want [%q]", *lines, want)
	}
}

func TestIndexMetamethodChain(t *testing.T) {
	s, lines := newTestState(t)
	base := s.NewTableValue(0, 1)
	base.Set(lua.String("greet"), lua.String("hello"))
	mt := s.NewTableValue(0, 1)
	mt.Set(lua.String("__index"), base)
	derived := s.NewTableValue(0, 0)
	derived.SetMetatable(mt)
	s.SetGlobal("derived", derived)

	if _, err := s.DoString("print(derived.greet)", "test"); err != nil {
		t.Fatal(err)
	}
	if len(*lines) != 1 || (*lines)[0] != "hello" {
		t.Errorf("output = %q; want [\"hello\"]", *lines)
	}
}

func TestArithMetamethod(t *testing.T) {
	s, lines := newTestState(t)
	mt := s.NewTableValue(0, 1)
	mt.Set(lua.String("__add"), s.NewFunction("vecadd", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		a := args[0].(*lua.Table)
		b := args[1].(*lua.Table)
		ax, _ := lua.ToNumber(a.Get(lua.String("x")))
		bx, _ := lua.ToNumber(b.Get(lua.String("x")))
		out := s.NewTableValue(0, 1)
		out.Set(lua.String("x"), lua.Number(ax+bx))
		return []lua.Value{out}, nil
	}))
	mkVec := func(x float64) *lua.Table {
		v := s.NewTableValue(0, 1)
		v.Set(lua.String("x"), lua.Number(x))
		v.SetMetatable(mt)
		return v
	}
	s.SetGlobal("v1", mkVec(3))
	s.SetGlobal("v2", mkVec(4))

	if _, err := s.DoString("local v3 = v1 + v2 print(v3.x)", "test"); err != nil {
		t.Fatal(err)
	}
	if len(*lines) != 1 || (*lines)[0] != "7" {
		t.Errorf("output = %q; want [\"7\"]", *lines)
	}
}

func TestCallMetamethod(t *testing.T) {
	s, lines := newTestState(t)
	mt := s.NewTableValue(0, 1)
	mt.Set(lua.String("__call"), s.NewFunction("callable", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		// args[0] is the callable table itself.
		n, _ := lua.ToNumber(args[1])
		return []lua.Value{lua.Number(n * 2)}, nil
	}))
	callable := s.NewTableValue(0, 0)
	callable.SetMetatable(mt)
	s.SetGlobal("double", callable)

	if _, err := s.DoString("print(double(21))", "test"); err != nil {
		t.Fatal(err)
	}
	if len(*lines) != 1 || (*lines)[0] != "42" {
		t.Errorf("output = %q; want [\"42\"]", *lines)
	}
}

func TestCallNonFunctionError(t *testing.T) {
	s, _ := newTestState(t)
	_, err := s.DoString("local x = nil x()", "test")
	if err == nil {
		t.Fatal("calling nil did not error")
	}
	if !strings.Contains(err.Error(), "attempt to call a nil value") {
		t.Errorf("error = %v; want 'attempt to call a nil value'", err)
	}
	if !strings.Contains(err.Error(), "test:1:") {
		t.Errorf("error %v does not carry the source:line prefix", err)
	}
}

func TestNilTableKeyRaises(t *testing.T) {
	s, _ := newTestState(t)
	_, err := s.DoString("local t = {} local k return t[k]", "test")
	if err == nil {
		t.Fatal("reading a table with a nil key did not error")
	}
	if !strings.Contains(err.Error(), "table index is nil") {
		t.Errorf("error = %v; want 'table index is nil'", err)
	}

	_, err = s.DoString("local t = {} local k t[k] = 1", "test")
	if err == nil {
		t.Fatal("writing a table with a nil key did not error")
	}
	if !strings.Contains(err.Error(), "table index is nil") {
		t.Errorf("error = %v; want 'table index is nil'", err)
	}
}

func TestPCallBoundary(t *testing.T) {
	s, _ := newTestState(t)
	fn, err := s.LoadString("local x = nil return x.field", "test")
	if err != nil {
		t.Fatal(err)
	}
	ok, results, err := s.PCall(fn, nil, lua.MultiReturn)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("PCall of an erroring chunk reported success")
	}
	if len(results) == 0 || !strings.Contains(lua.ToStringValue(results[0]), "attempt to index a nil value") {
		t.Errorf("error value = %v; want an index-nil message", results)
	}

	// The state stays usable after the caught error.
	if _, err := s.DoString("print(1)", "test"); err != nil {
		t.Errorf("state unusable after caught error: %v", err)
	}
}

func TestReturnFromMainChunk(t *testing.T) {
	s, _ := newTestState(t)
	results, err := s.DoString("return 1, 'two', true", "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("main chunk returned %d values; want 3", len(results))
	}
	if n, _ := lua.ToNumber(results[0]); n != 1 {
		t.Errorf("results[0] = %v; want 1", results[0])
	}
	if got := lua.ToStringValue(results[1]); got != "two" {
		t.Errorf("results[1] = %q; want \"two\"", got)
	}
}

func TestGlobalsAcrossChunks(t *testing.T) {
	s, lines := newTestState(t)
	if _, err := s.DoString("counter = 10", "test"); err != nil {
		t.Fatal(err)
	}
	if n, _ := lua.ToNumber(s.GetGlobal("counter")); n != 10 {
		t.Fatalf("GetGlobal(counter) = %v; want 10", s.GetGlobal("counter"))
	}
	s.SetGlobal("counter", lua.Number(20))
	if _, err := s.DoString("print(counter)", "test"); err != nil {
		t.Fatal(err)
	}
	if (*lines)[0] != "20" {
		t.Errorf("output = %q; want [\"20\"]", *lines)
	}
}

func TestGarbageCollectionReclaimsDroppedTables(t *testing.T) {
	s, _ := newTestState(t)
	s.CollectGarbage()
	baseline := s.Heap().Len()

	if _, err := s.DoString(`
		for i = 1, 1000 do
			local t = {i, i + 1, i + 2}
		end
	`, "test"); err != nil {
		t.Fatal(err)
	}

	s.CollectGarbage()
	after := s.Heap().Len()
	if after > baseline+1 {
		t.Errorf("live objects after drop+collect = %d; want at most baseline+1 = %d", after, baseline+1)
	}
}

func TestGarbageCollectionKeepsReachable(t *testing.T) {
	s, lines := newTestState(t)
	if _, err := s.DoString(`
		keep = {value = "survives"}
		for i = 1, 1000 do local _ = {i} end
	`, "test"); err != nil {
		t.Fatal(err)
	}
	s.CollectGarbage()
	if _, err := s.DoString("print(keep.value)", "test"); err != nil {
		t.Fatal(err)
	}
	if (*lines)[0] != "survives" {
		t.Errorf("output = %q; want [\"survives\"]", *lines)
	}
}

func TestClosedUpvalueSurvivesCollection(t *testing.T) {
	checkOutput(t, `
		local function mk()
			local secret = "kept"
			return function() return secret end
		end
		local get = mk()
		for i = 1, 1000 do local _ = {i} end
		print(get())
	`, "kept")
}

func TestBinaryChunkRoundTrip(t *testing.T) {
	s, lines := newTestState(t)
	data := compileToBinary(t, "print('from binary chunk')")
	fn, err := s.Load(strings.NewReader(string(data)), "=binary")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Call(fn, nil, lua.MultiReturn); err != nil {
		t.Fatal(err)
	}
	if len(*lines) != 1 || (*lines)[0] != "from binary chunk" {
		t.Errorf("output = %q; want [\"from binary chunk\"]", *lines)
	}
}
