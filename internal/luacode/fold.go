package luacode

import (
	"math"

	"lua51.dev/vm/internal/luaast"
	"lua51.dev/vm/internal/lualex"
)

// foldExpr evaluates e at compile time if it is built purely from
// literals: numeric arithmetic and unary minus fold under IEEE-754
// (division or modulo by a constant zero folds to inf/NaN rather than
// erroring), and concatenation folds when every operand is a literal
// string or number. Anything involving a variable, a comparison, a
// short-circuit operator, or a metamethod-capable value is left for
// the VM.
func foldExpr(e luaast.Expr) (Value, bool) {
	switch ex := e.(type) {
	case *luaast.NumberExpr:
		n, err := lualex.ParseNumber(ex.Text)
		if err != nil {
			return Value{}, false
		}
		return NumberValue(n), true
	case *luaast.StringExpr:
		return StringValue(ex.Value), true
	case *luaast.ParenExpr:
		return foldExpr(ex.Inner)
	case *luaast.UnaryExpr:
		if ex.Op != luaast.OpNeg {
			return Value{}, false
		}
		v, ok := foldExpr(ex.Operand)
		if !ok {
			return Value{}, false
		}
		n, ok := v.IsNumber()
		if !ok {
			return Value{}, false
		}
		return NumberValue(-n), true
	case *luaast.BinaryExpr:
		return foldBinary(ex)
	default:
		return Value{}, false
	}
}

func foldBinary(e *luaast.BinaryExpr) (Value, bool) {
	left, ok := foldExpr(e.Left)
	if !ok {
		return Value{}, false
	}
	right, ok := foldExpr(e.Right)
	if !ok {
		return Value{}, false
	}

	if e.Op == luaast.OpConcat {
		// Both operands are literal strings or numbers by
		// construction; numbers render with the same formatting
		// tostring uses so folding is unobservable.
		return StringValue(left.String() + right.String()), true
	}

	// Arithmetic folds only over literal numbers: a literal string is
	// left alone even though the VM would coerce it, so the coercion
	// (and any error about it) stays a runtime behavior.
	x, ok := left.IsNumber()
	if !ok {
		return Value{}, false
	}
	y, ok := right.IsNumber()
	if !ok {
		return Value{}, false
	}
	switch e.Op {
	case luaast.OpAdd:
		return NumberValue(x + y), true
	case luaast.OpSub:
		return NumberValue(x - y), true
	case luaast.OpMul:
		return NumberValue(x * y), true
	case luaast.OpDiv:
		return NumberValue(x / y), true
	case luaast.OpMod:
		return NumberValue(x - math.Floor(x/y)*y), true
	case luaast.OpPow:
		return NumberValue(math.Pow(x, y)), true
	default:
		return Value{}, false
	}
}
