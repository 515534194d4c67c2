package stdlib

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"lua51.dev/vm/lua"
)

// OpenBase installs the basic functions directly into the globals
// table, plus the _G self-reference and the _VERSION string.
func OpenBase(s *lua.State, opts *Options) {
	out := opts.output()

	funcs := map[string]lua.Function{
		"assert":         baseAssert,
		"collectgarbage": baseCollectGarbage,
		"dofile":         baseDofile,
		"error":          baseError,
		"getmetatable":   baseGetMetatable,
		"ipairs":         baseIPairs,
		"loadstring":     baseLoadString,
		"next":           baseNext,
		"pairs":          basePairs,
		"pcall":          basePCall,
		"print":          newBasePrint(out),
		"rawequal":       baseRawEqual,
		"rawget":         baseRawGet,
		"rawlen":         baseRawLen,
		"rawset":         baseRawSet,
		"select":         baseSelect,
		"setmetatable":   baseSetMetatable,
		"tonumber":       baseToNumber,
		"tostring":       baseToString,
		"type":           baseType,
		"unpack":         baseUnpack,
		"xpcall":         baseXPCall,
	}
	for name, fn := range funcs {
		s.Register(name, fn)
	}
	s.SetGlobal("_G", s.Globals())
	s.SetGlobal("_VERSION", lua.String("Lua 5.1"))
}

func newBasePrint(out io.Writer) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		for i, v := range args {
			if i > 0 {
				io.WriteString(out, "\t")
			}
			str, err := s.ToDisplayString(v)
			if err != nil {
				return nil, err
			}
			io.WriteString(out, str)
		}
		io.WriteString(out, "\n")
		return nil, nil
	}
}

func baseType(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if len(args) == 0 {
		return nil, argError(s, 1, "type", "value expected")
	}
	return []lua.Value{lua.String(lua.ValueType(args[0]).String())}, nil
}

func baseToString(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if len(args) == 0 {
		return nil, argError(s, 1, "tostring", "value expected")
	}
	str, err := s.ToDisplayString(args[0])
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.String(str)}, nil
}

func baseToNumber(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	v := arg(args, 1)
	if arg(args, 2) == nil {
		if n, ok := lua.ToNumber(v); ok {
			return []lua.Value{lua.Number(n)}, nil
		}
		return []lua.Value{nil}, nil
	}

	base, err := checkInt(s, args, 2, "tonumber")
	if err != nil {
		return nil, err
	}
	if base < 2 || base > 36 {
		return nil, argError(s, 2, "tonumber", "base out of range")
	}
	str, err := checkString(s, args, 1, "tonumber")
	if err != nil {
		return nil, err
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(str), base, 64)
	if perr != nil {
		return []lua.Value{nil}, nil
	}
	return []lua.Value{lua.Number(float64(n))}, nil
}

func baseIPairs(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "ipairs")
	if err != nil {
		return nil, err
	}
	iter := s.NewFunction("ipairs iterator", func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		t, err := checkTable(s, args, 1, "ipairs")
		if err != nil {
			return nil, err
		}
		i, _ := lua.ToNumber(arg(args, 2))
		next := i + 1
		v := t.Get(lua.Number(next))
		if v == nil {
			return []lua.Value{nil}, nil
		}
		return []lua.Value{lua.Number(next), v}, nil
	})
	return []lua.Value{iter, t, lua.Number(0)}, nil
}

func basePairs(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "pairs")
	if err != nil {
		return nil, err
	}
	return []lua.Value{s.NewFunction("next", baseNext), t, nil}, nil
}

func baseNext(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "next")
	if err != nil {
		return nil, err
	}
	k, v, ok := t.Next(arg(args, 2))
	if !ok {
		return nil, lua.NewError(lua.String(s.Where(0) + "invalid key to 'next'"))
	}
	if k == nil {
		return []lua.Value{nil}, nil
	}
	return []lua.Value{k, v}, nil
}

func basePCall(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if len(args) == 0 {
		return nil, argError(s, 1, "pcall", "value expected")
	}
	ok, results, err := s.PCall(args[0], args[1:], lua.MultiReturn)
	if err != nil {
		return nil, err
	}
	return append([]lua.Value{lua.Bool(ok)}, results...), nil
}

func baseXPCall(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if len(args) < 2 {
		return nil, argError(s, 2, "xpcall", "value expected")
	}
	handler := args[1]
	ok, results, err := s.PCall(args[0], nil, lua.MultiReturn)
	if err != nil {
		return nil, err
	}
	if ok {
		return append([]lua.Value{lua.Bool(true)}, results...), nil
	}
	var errValue lua.Value
	if len(results) > 0 {
		errValue = results[0]
	}
	hok, hresults, err := s.PCall(handler, []lua.Value{errValue}, lua.MultiReturn)
	if err != nil {
		return nil, err
	}
	if !hok {
		return []lua.Value{lua.Bool(false), lua.String("error in error handling")}, nil
	}
	return append([]lua.Value{lua.Bool(false)}, hresults...), nil
}

func baseError(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	msg := arg(args, 1)
	level, err := optInt(s, args, 2, "error", 1)
	if err != nil {
		return nil, err
	}
	if lua.ValueType(msg) == lua.TypeString && level > 0 {
		msg = lua.String(s.Where(level-1) + lua.ToStringValue(msg))
	}
	return nil, lua.NewError(msg)
}

func baseAssert(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if len(args) == 0 {
		return nil, argError(s, 1, "assert", "value expected")
	}
	if lua.ToBool(args[0]) {
		return args, nil
	}
	if msg := arg(args, 2); msg != nil {
		return nil, lua.NewError(msg)
	}
	return nil, lua.NewError(lua.String("assertion failed!"))
}

func baseSelect(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if v := arg(args, 1); lua.ValueType(v) == lua.TypeString && lua.ToStringValue(v) == "#" {
		return []lua.Value{lua.Number(float64(len(args) - 1))}, nil
	}
	n, err := checkInt(s, args, 1, "select")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = len(args) - 1 + n + 1
	}
	if n < 1 {
		return nil, argError(s, 1, "select", "index out of range")
	}
	if n >= len(args) {
		return nil, nil
	}
	return args[n:], nil
}

func baseUnpack(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "unpack")
	if err != nil {
		return nil, err
	}
	i, err := optInt(s, args, 2, "unpack", 1)
	if err != nil {
		return nil, err
	}
	j, err := optInt(s, args, 3, "unpack", int(t.Len()))
	if err != nil {
		return nil, err
	}
	if i > j {
		return nil, nil
	}
	results := make([]lua.Value, 0, j-i+1)
	for k := i; k <= j; k++ {
		results = append(results, t.Get(lua.Number(float64(k))))
	}
	return results, nil
}

func baseRawGet(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "rawget")
	if err != nil {
		return nil, err
	}
	return []lua.Value{t.Get(arg(args, 2))}, nil
}

func baseRawSet(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "rawset")
	if err != nil {
		return nil, err
	}
	if arg(args, 2) == nil {
		return nil, lua.NewError(lua.String(s.Where(0) + "table index is nil"))
	}
	t.Set(arg(args, 2), arg(args, 3))
	return []lua.Value{t}, nil
}

func baseRawEqual(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	if len(args) < 2 {
		return nil, argError(s, 2, "rawequal", "value expected")
	}
	return []lua.Value{lua.Bool(lua.RawEqual(args[0], args[1]))}, nil
}

func baseRawLen(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	switch v := arg(args, 1).(type) {
	case *lua.Table:
		return []lua.Value{lua.Number(float64(v.Len()))}, nil
	default:
		if lua.ValueType(v) == lua.TypeString {
			return []lua.Value{lua.Number(float64(len(lua.ToStringValue(v))))}, nil
		}
		return nil, argError(s, 1, "rawlen", "table or string expected")
	}
}

func baseSetMetatable(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "setmetatable")
	if err != nil {
		return nil, err
	}
	var mt *lua.Table
	switch v := arg(args, 2).(type) {
	case nil:
	case *lua.Table:
		mt = v
	default:
		return nil, argError(s, 2, "setmetatable", "nil or table expected")
	}
	if cur := t.Metatable(); cur != nil && cur.Get(lua.String("__metatable")) != nil {
		return nil, lua.NewError(lua.String(s.Where(0) + "cannot change a protected metatable"))
	}
	t.SetMetatable(mt)
	return []lua.Value{t}, nil
}

func baseGetMetatable(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	mt := s.Metatable(arg(args, 1))
	if mt == nil {
		return []lua.Value{nil}, nil
	}
	if protected := mt.Get(lua.String("__metatable")); protected != nil {
		return []lua.Value{protected}, nil
	}
	return []lua.Value{mt}, nil
}

func baseCollectGarbage(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	opt, err := optString(s, args, 1, "collectgarbage", "collect")
	if err != nil {
		return nil, err
	}
	switch opt {
	case "collect", "step":
		s.CollectGarbage()
		return []lua.Value{lua.Number(0)}, nil
	case "count":
		return []lua.Value{lua.Number(float64(s.Heap().Count()) / 1024)}, nil
	case "setpause":
		pause, err := optNumber(s, args, 2, "collectgarbage", 200)
		if err != nil {
			return nil, err
		}
		s.Heap().SetPauseMultiplier(pause / 100)
		return []lua.Value{lua.Number(0)}, nil
	default:
		return nil, argError(s, 1, "collectgarbage", fmt.Sprintf("invalid option '%s'", opt))
	}
}

func baseLoadString(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	src, err := checkString(s, args, 1, "loadstring")
	if err != nil {
		return nil, err
	}
	name, err := optString(s, args, 2, "loadstring", "=(loadstring)")
	if err != nil {
		return nil, err
	}
	fn, lerr := s.LoadString(src, name)
	if lerr != nil {
		return []lua.Value{nil, lua.String(lerr.Error())}, nil
	}
	return []lua.Value{fn}, nil
}

func baseDofile(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	path, err := checkString(s, args, 1, "dofile")
	if err != nil {
		return nil, err
	}
	return s.DoFile(path)
}
