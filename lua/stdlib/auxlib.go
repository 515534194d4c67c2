package stdlib

import (
	"fmt"

	"lua51.dev/vm/lua"
)

// arg returns the n-th (1-based) argument, or nil when the caller
// passed fewer.
func arg(args []lua.Value, n int) lua.Value {
	if n < 1 || n > len(args) {
		return nil
	}
	return args[n-1]
}

// argError raises the standard "bad argument" error for argument n of
// fname.
func argError(s *lua.State, n int, fname, extra string) error {
	return lua.NewError(lua.String(fmt.Sprintf("%sbad argument #%d to '%s' (%s)", s.Where(0), n, fname, extra)))
}

func typeError(s *lua.State, n int, fname string, want lua.Type, got lua.Value) error {
	return argError(s, n, fname, fmt.Sprintf("%v expected, got %v", want, lua.ValueType(got)))
}

func checkNumber(s *lua.State, args []lua.Value, n int, fname string) (float64, error) {
	v := arg(args, n)
	f, ok := lua.ToNumber(v)
	if !ok {
		return 0, typeError(s, n, fname, lua.TypeNumber, v)
	}
	return f, nil
}

func checkInt(s *lua.State, args []lua.Value, n int, fname string) (int, error) {
	f, err := checkNumber(s, args, n, fname)
	return int(f), err
}

func optNumber(s *lua.State, args []lua.Value, n int, fname string, def float64) (float64, error) {
	if arg(args, n) == nil {
		return def, nil
	}
	return checkNumber(s, args, n, fname)
}

func optInt(s *lua.State, args []lua.Value, n int, fname string, def int) (int, error) {
	f, err := optNumber(s, args, n, fname, float64(def))
	return int(f), err
}

// checkString accepts a string or a number (which converts, per Lua's
// implicit string coercion for library arguments).
func checkString(s *lua.State, args []lua.Value, n int, fname string) (string, error) {
	v := arg(args, n)
	switch lua.ValueType(v) {
	case lua.TypeString, lua.TypeNumber:
		return lua.ToStringValue(v), nil
	default:
		return "", typeError(s, n, fname, lua.TypeString, v)
	}
}

func optString(s *lua.State, args []lua.Value, n int, fname, def string) (string, error) {
	if arg(args, n) == nil {
		return def, nil
	}
	return checkString(s, args, n, fname)
}

func checkTable(s *lua.State, args []lua.Value, n int, fname string) (*lua.Table, error) {
	v := arg(args, n)
	t, ok := v.(*lua.Table)
	if !ok {
		return nil, typeError(s, n, fname, lua.TypeTable, v)
	}
	return t, nil
}

func checkFunction(s *lua.State, args []lua.Value, n int, fname string) (lua.Value, error) {
	v := arg(args, n)
	if lua.ValueType(v) != lua.TypeFunction {
		return nil, typeError(s, n, fname, lua.TypeFunction, v)
	}
	return v, nil
}
