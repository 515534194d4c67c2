package stdlib_test

import (
	"bytes"
	"strings"
	"testing"

	"lua51.dev/vm/lua"
	"lua51.dev/vm/lua/stdlib"
)

// newTestState opens every library with print/io.write captured.
func newTestState(t *testing.T) (*lua.State, *bytes.Buffer) {
	t.Helper()
	s := lua.NewState()
	out := new(bytes.Buffer)
	stdlib.OpenAll(s, &stdlib.Options{Output: out})
	return s, out
}

func runScript(t *testing.T, src string) string {
	t.Helper()
	s, out := newTestState(t)
	if _, err := s.DoString(src, "test"); err != nil {
		t.Fatalf("DoString(%q) error: %v", src, err)
	}
	return out.String()
}

func checkOutput(t *testing.T, src, want string) {
	t.Helper()
	if got := runScript(t, src); got != want {
		t.Errorf("script %q output %q; want %q", src, got, want)
	}
}

func TestIPairsSum(t *testing.T) {
	checkOutput(t, `
		local t = {10, 20, 30}
		local s = 0
		for i, v in ipairs(t) do s = s + v end
		print(s)
	`, "60\n")
}

func TestPairsVisitsEverything(t *testing.T) {
	checkOutput(t, `
		local t = {a = 1, b = 2, c = 3, 10, 20}
		local count, sum = 0, 0
		for k, v in pairs(t) do
			count = count + 1
			sum = sum + v
		end
		print(count, sum)
	`, "5\t36\n")
}

func TestPCallCatchesError(t *testing.T) {
	s, out := newTestState(t)
	if _, err := s.DoString(`local ok, err = pcall(function() error("boom") end) print(ok, err)`, "test"); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "false\t") || !strings.Contains(got, "boom") {
		t.Errorf("output = %q; want false plus a message containing \"boom\"", got)
	}
	if !strings.Contains(got, "test:1:") {
		t.Errorf("output %q lacks the source:line prefix error() adds", got)
	}
}

func TestPCallReturnsValues(t *testing.T) {
	checkOutput(t, `print(pcall(function() return 1, 2 end))`, "true\t1\t2\n")
}

func TestXPCallHandler(t *testing.T) {
	checkOutput(t, `
		local ok, msg = xpcall(
			function() error("inner") end,
			function(e) return "handled: " .. e end)
		print(ok, msg)
	`, "false\thandled: test:3: inner\n")
}

func TestErrorWithNonStringValue(t *testing.T) {
	checkOutput(t, `
		local ok, err = pcall(function() error({code = 42}) end)
		print(ok, type(err), err.code)
	`, "false\ttable\t42\n")
}

func TestAssert(t *testing.T) {
	checkOutput(t, `print(pcall(function() assert(false, "nope") end))`, "false\tnope\n")
	checkOutput(t, `print(assert(1, "unused"))`, "1\tunused\n")
}

func TestTypeAndToString(t *testing.T) {
	checkOutput(t, `print(type(nil), type(true), type(1), type("s"), type({}), type(print))`,
		"nil\tboolean\tnumber\tstring\ttable\tfunction\n")
	checkOutput(t, `print(tostring(nil), tostring(true), tostring(1.5))`, "nil\ttrue\t1.5\n")
}

func TestToStringMetamethod(t *testing.T) {
	checkOutput(t, `
		local t = setmetatable({}, {__tostring = function() return "custom" end})
		print(t)
	`, "custom\n")
}

func TestToNumber(t *testing.T) {
	checkOutput(t, `print(tonumber("42"), tonumber("0x10"), tonumber("  3.5  "), tonumber("nope"))`,
		"42\t16\t3.5\tnil\n")
	checkOutput(t, `print(tonumber("ff", 16), tonumber("101", 2))`, "255\t5\n")
}

func TestSelectAndUnpack(t *testing.T) {
	checkOutput(t, `print(select("#", "a", "b", "c"))`, "3\n")
	checkOutput(t, `print(select(2, "a", "b", "c"))`, "b\tc\n")
	checkOutput(t, `print(unpack({1, 2, 3}))`, "1\t2\t3\n")
	checkOutput(t, `print(unpack({1, 2, 3}, 2))`, "2\t3\n")
}

func TestRawAccessorsBypassMetamethods(t *testing.T) {
	checkOutput(t, `
		local t = setmetatable({}, {__index = function() return "shadow" end})
		print(t.anything, rawget(t, "anything"))
	`, "shadow\tnil\n")
	checkOutput(t, `
		local log = {}
		local t = setmetatable({}, {__newindex = function(t, k, v) log[#log + 1] = k end})
		t.caught = 1
		rawset(t, "direct", 2)
		print(log[1], rawget(t, "direct"), rawget(t, "caught"))
	`, "caught\t2\tnil\n")
}

func TestMetatableProtection(t *testing.T) {
	checkOutput(t, `
		local t = setmetatable({}, {__metatable = "locked"})
		print(getmetatable(t))
		print(pcall(setmetatable, t, {}))
	`, "locked\nfalse\ttest:4: cannot change a protected metatable\n")
}

func TestNext(t *testing.T) {
	checkOutput(t, `
		local t = {"only"}
		local k, v = next(t)
		print(k, v)
		print(next(t, k))
	`, "1\tonly\nnil\n")
}

func TestCollectGarbageCount(t *testing.T) {
	checkOutput(t, `
		collectgarbage("collect")
		print(type(collectgarbage("count")))
	`, "number\n")
}

func TestLoadString(t *testing.T) {
	checkOutput(t, `
		local f = loadstring("return 6 * 7")
		print(f())
		local bad, msg = loadstring("return +")
		print(bad == nil, type(msg))
	`, "42\ntrue\tstring\n")
}

func TestGlobalTableAlias(t *testing.T) {
	checkOutput(t, `
		marker = "here"
		print(_G.marker, _VERSION)
	`, "here\tLua 5.1\n")
}

func TestStringMetatableSugar(t *testing.T) {
	checkOutput(t, `print(("hello"):upper(), ("abc"):len())`, "HELLO\t3\n")
}

func TestIOWrite(t *testing.T) {
	checkOutput(t, `io.write("a", 1, "b")`, "a1b")
}

func TestIORead(t *testing.T) {
	s := lua.NewState()
	out := new(bytes.Buffer)
	stdlib.OpenAll(s, &stdlib.Options{
		Output: out,
		Input:  strings.NewReader("first line\n42\n"),
	})
	if _, err := s.DoString(`
		print(io.read("*l"))
		print(io.read("*n"))
	`, "test"); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "first line\n42\n"; got != want {
		t.Errorf("output = %q; want %q", got, want)
	}
}

func TestOSLibraryShapes(t *testing.T) {
	checkOutput(t, `
		print(type(os.time()), type(os.clock()))
		local t = os.date("*t")
		print(type(t), t.year >= 2020)
	`, "number\tnumber\ntable\ttrue\n")
}
