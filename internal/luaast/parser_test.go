package luaast

import (
	"strings"
	"testing"
)

func parse(t *testing.T, src string) *FunctionBody {
	t.Helper()
	body, err := Parse("test", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", src, err)
	}
	return body
}

func TestParseLocal(t *testing.T) {
	body := parse(t, "local x, y = 1, 2")
	if len(body.Body.Stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(body.Body.Stmts))
	}
	local, ok := body.Body.Stmts[0].(*LocalStmt)
	if !ok {
		t.Fatalf("statement is %T, want *LocalStmt", body.Body.Stmts[0])
	}
	if got := strings.Join(local.Names, ","); got != "x,y" {
		t.Errorf("names = %q, want %q", got, "x,y")
	}
	if len(local.Init) != 2 {
		t.Errorf("got %d init exprs, want 2", len(local.Init))
	}
}

func TestParseElseifChain(t *testing.T) {
	body := parse(t, `
		if a then
			return 1
		elseif b then
			return 2
		else
			return 3
		end
	`)
	ifStmt, ok := body.Body.Stmts[0].(*IfStmt)
	if !ok {
		t.Fatalf("statement is %T, want *IfStmt", body.Body.Stmts[0])
	}
	nested, ok := ifStmt.Else.(*IfStmt)
	if !ok {
		t.Fatalf("Else is %T, want *IfStmt (rewritten elseif)", ifStmt.Else)
	}
	if _, ok := nested.Else.(*ElseBlock); !ok {
		t.Errorf("nested Else is %T, want *ElseBlock", nested.Else)
	}
}

func TestParseMethodSugar(t *testing.T) {
	body := parse(t, "function obj:m(a) return a end")
	fn, ok := body.Body.Stmts[0].(*FunctionStmt)
	if !ok {
		t.Fatalf("statement is %T, want *FunctionStmt", body.Body.Stmts[0])
	}
	if fn.Method != "m" {
		t.Errorf("Method = %q, want %q", fn.Method, "m")
	}
	if len(fn.Body.Params) != 2 || fn.Body.Params[0] != "self" {
		t.Errorf("Params = %v, want [self a]", fn.Body.Params)
	}
}

func TestParsePrecedence(t *testing.T) {
	body := parse(t, "return 1 + 2 * 3 ^ 2 .. 4")
	ret, ok := body.Body.Stmts[0].(*ReturnStmt)
	if !ok {
		t.Fatalf("statement is %T, want *ReturnStmt", body.Body.Stmts[0])
	}
	concat, ok := ret.Exprs[0].(*BinaryExpr)
	if !ok || concat.Op != OpConcat {
		t.Fatalf("top-level op = %v, want OpConcat", ret.Exprs[0])
	}
	add, ok := concat.Left.(*BinaryExpr)
	if !ok || add.Op != OpAdd {
		t.Fatalf("concat.Left op = %v, want OpAdd", concat.Left)
	}
	mul, ok := add.Right.(*BinaryExpr)
	if !ok || mul.Op != OpMul {
		t.Fatalf("add.Right op = %v, want OpMul", add.Right)
	}
	if _, ok := mul.Right.(*BinaryExpr); !ok {
		t.Errorf("mul.Right = %T, want *BinaryExpr (the ^ term)", mul.Right)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	// Formatting a parsed chunk and reparsing it must reach a fixed
	// point: the second formatting is byte-identical to the first.
	sources := []string{
		"local x, y = 1, 2",
		"x = 1 + 2 * 3",
		"return 2 ^ 3 ^ 2",
		`return "a" .. "b" .. "c"`,
		"return (f())",
		"return -x ^ 2",
		"return not (a and b) or c",
		"print(1, 'two', {3, 4, k = 5, [6] = 7})",
		"local t = {} t.field = t[1]",
		"obj:method(arg1, arg2)",
		"for i = 1, 10, 2 do print(i) end",
		"for k, v in pairs(t) do print(k, v) end",
		"while x < 10 do x = x + 1 end",
		"repeat x = x - 1 until x == 0",
		"if a then f() elseif b then g() else h() end",
		"do local hidden = 1 end",
		"local function fact(n) if n <= 1 then return 1 end return n * fact(n - 1) end",
		"function obj.field:method(a) self.x = a end",
		"local f = function(...) return ... end",
		"while true do if done then break end end",
	}
	for _, src := range sources {
		first := Format(parse(t, src))
		body, err := Parse("roundtrip", strings.NewReader(first))
		if err != nil {
			t.Errorf("reparse of formatted %q failed: %v\nformatted:\n%s", src, err, first)
			continue
		}
		second := Format(body)
		if first != second {
			t.Errorf("format of %q is not a fixed point:\nfirst:\n%s\nsecond:\n%s", src, first, second)
		}
	}
}

func TestParseRightAssociativePow(t *testing.T) {
	body := parse(t, "return 2 ^ 3 ^ 2")
	ret := body.Body.Stmts[0].(*ReturnStmt)
	top := ret.Exprs[0].(*BinaryExpr)
	if top.Op != OpPow {
		t.Fatalf("top op = %v, want OpPow", top.Op)
	}
	if _, ok := top.Right.(*BinaryExpr); !ok {
		t.Errorf("^ did not associate to the right: Right = %T", top.Right)
	}
	if _, ok := top.Left.(*NumberExpr); !ok {
		t.Errorf("^ did not associate to the right: Left = %T", top.Left)
	}
}
