package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"lua51.dev/vm/lua"
)

// OpenString installs the string library and wires the shared string
// metatable so s:upper()-style calls resolve through __index.
func OpenString(s *lua.State) {
	lib := s.RegisterLib(StringLibraryName, map[string]lua.Function{
		"byte":    stringByte,
		"char":    stringChar,
		"find":    stringFind,
		"format":  stringFormat,
		"gmatch":  stringGMatch,
		"gsub":    stringGSub,
		"len":     stringLen,
		"lower":   stringLower,
		"match":   stringMatch,
		"rep":     stringRep,
		"reverse": stringReverse,
		"sub":     stringSub,
		"upper":   stringUpper,
	})

	meta := s.NewTableValue(0, 1)
	meta.Set(lua.String("__index"), lib)
	s.SetStringMetatable(meta)
}

// strIndex converts a Lua string index (1-based, negative counts from
// the end) to a 0-based offset. Indices before the start clamp to 0;
// indices past the end are not clamped, so the result can exceed len.
func strIndex(i, length int) int {
	switch {
	case i > 0:
		return i - 1
	case i == 0:
		return 0
	case -i > length:
		return 0
	default:
		return length + i
	}
}

func stringLen(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "len")
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.Number(float64(len(str)))}, nil
}

func stringSub(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "sub")
	if err != nil {
		return nil, err
	}
	i, err := optInt(s, args, 2, "sub", 1)
	if err != nil {
		return nil, err
	}
	j, err := optInt(s, args, 3, "sub", -1)
	if err != nil {
		return nil, err
	}
	start := strIndex(i, len(str))
	var end int
	if j >= 0 {
		end = j
	} else {
		end = len(str) + j + 1
	}
	if end > len(str) {
		end = len(str)
	}
	if start >= end {
		return []lua.Value{lua.String("")}, nil
	}
	return []lua.Value{lua.String(str[start:end])}, nil
}

func stringUpper(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "upper")
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.String(strings.ToUpper(str))}, nil
}

func stringLower(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "lower")
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.String(strings.ToLower(str))}, nil
}

func stringRep(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "rep")
	if err != nil {
		return nil, err
	}
	n, err := checkInt(s, args, 2, "rep")
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []lua.Value{lua.String("")}, nil
	}
	return []lua.Value{lua.String(strings.Repeat(str, n))}, nil
}

func stringReverse(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "reverse")
	if err != nil {
		return nil, err
	}
	b := []byte(str)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return []lua.Value{lua.String(string(b))}, nil
}

func stringByte(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	str, err := checkString(s, args, 1, "byte")
	if err != nil {
		return nil, err
	}
	i, err := optInt(s, args, 2, "byte", 1)
	if err != nil {
		return nil, err
	}
	j, err := optInt(s, args, 3, "byte", i)
	if err != nil {
		return nil, err
	}
	start := strIndex(i, len(str))
	var end int
	if j >= 0 {
		end = j
	} else {
		end = len(str) + j + 1
	}
	if end > len(str) {
		end = len(str)
	}
	var results []lua.Value
	for k := start; k < end; k++ {
		results = append(results, lua.Number(float64(str[k])))
	}
	return results, nil
}

func stringChar(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	b := make([]byte, len(args))
	for i := range args {
		n, err := checkInt(s, args, i+1, "char")
		if err != nil {
			return nil, err
		}
		if n < 0 || n > 255 {
			return nil, argError(s, i+1, "char", "value out of range")
		}
		b[i] = byte(n)
	}
	return []lua.Value{lua.String(string(b))}, nil
}

// captureValues converts the matcher's raw capture list to Lua values.
// When the pattern has no explicit captures, the whole match is the
// single capture, per find/match/gmatch/gsub semantics.
func captureValues(src string, start, end int, caps []capture) []lua.Value {
	if len(caps) == 0 {
		return []lua.Value{lua.String(src[start:end])}
	}
	values := make([]lua.Value, len(caps))
	for i, c := range caps {
		if c.len == capturePosition {
			values[i] = lua.Number(float64(c.init + 1))
		} else {
			values[i] = lua.String(src[c.init : c.init+c.len])
		}
	}
	return values
}

func stringFind(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	return strFindAux(s, args, true)
}

func stringMatch(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	return strFindAux(s, args, false)
}

func strFindAux(s *lua.State, args []lua.Value, find bool) ([]lua.Value, error) {
	fname := "match"
	if find {
		fname = "find"
	}
	src, err := checkString(s, args, 1, fname)
	if err != nil {
		return nil, err
	}
	pat, err := checkString(s, args, 2, fname)
	if err != nil {
		return nil, err
	}
	init, err := optInt(s, args, 3, fname, 1)
	if err != nil {
		return nil, err
	}
	start := strIndex(init, len(src))
	if start > len(src) {
		return []lua.Value{nil}, nil
	}

	if find && (lua.ToBool(arg(args, 4)) || !strings.ContainsAny(pat, "^$*+?.([%-")) {
		// Plain textual search.
		if idx := strings.Index(src[start:], pat); idx >= 0 {
			return []lua.Value{
				lua.Number(float64(start + idx + 1)),
				lua.Number(float64(start + idx + len(pat))),
			}, nil
		}
		return []lua.Value{nil}, nil
	}

	mstart, mend, caps, merr, ok := patternMatch(src, pat, start)
	if merr != nil {
		return nil, lua.NewError(lua.String(s.Where(0) + merr.Error()))
	}
	if !ok {
		return []lua.Value{nil}, nil
	}
	if find {
		results := []lua.Value{lua.Number(float64(mstart + 1)), lua.Number(float64(mend))}
		if len(caps) > 0 {
			results = append(results, captureValues(src, mstart, mend, caps)...)
		}
		return results, nil
	}
	return captureValues(src, mstart, mend, caps), nil
}

func stringGMatch(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	src, err := checkString(s, args, 1, "gmatch")
	if err != nil {
		return nil, err
	}
	pat, err := checkString(s, args, 2, "gmatch")
	if err != nil {
		return nil, err
	}

	pos := 0
	iter := s.NewFunction("gmatch iterator", func(s *lua.State, _ []lua.Value) ([]lua.Value, error) {
		for pos <= len(src) {
			start, end, caps, merr, ok := patternMatch(src, pat, pos)
			if merr != nil {
				return nil, lua.NewError(lua.String(s.Where(0) + merr.Error()))
			}
			if !ok {
				return []lua.Value{nil}, nil
			}
			if end == start {
				// Empty match: advance to avoid looping forever.
				pos = start + 1
			} else {
				pos = end
			}
			return captureValues(src, start, end, caps), nil
		}
		return []lua.Value{nil}, nil
	})
	return []lua.Value{iter}, nil
}

func stringGSub(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	src, err := checkString(s, args, 1, "gsub")
	if err != nil {
		return nil, err
	}
	pat, err := checkString(s, args, 2, "gsub")
	if err != nil {
		return nil, err
	}
	repl := arg(args, 3)
	switch lua.ValueType(repl) {
	case lua.TypeString, lua.TypeNumber, lua.TypeTable, lua.TypeFunction:
	default:
		return nil, argError(s, 3, "gsub", "string/function/table expected")
	}
	maxN, err := optInt(s, args, 4, "gsub", len(src)+1)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	pos, count := 0, 0
	for count < maxN && pos <= len(src) {
		start, end, caps, merr, ok := patternMatch(src, pat, pos)
		if merr != nil {
			return nil, lua.NewError(lua.String(s.Where(0) + merr.Error()))
		}
		if !ok {
			break
		}
		out.WriteString(src[pos:start])
		rep, err := gsubReplacement(s, src, start, end, caps, repl)
		if err != nil {
			return nil, err
		}
		out.WriteString(rep)
		count++
		if end > start {
			pos = end
		} else {
			// Empty match: copy one byte through and advance.
			if start < len(src) {
				out.WriteByte(src[start])
			}
			pos = start + 1
		}
	}
	if pos < len(src) {
		out.WriteString(src[pos:])
	}
	return []lua.Value{lua.String(out.String()), lua.Number(float64(count))}, nil
}

func gsubReplacement(s *lua.State, src string, start, end int, caps []capture, repl lua.Value) (string, error) {
	whole := src[start:end]
	values := captureValues(src, start, end, caps)

	switch lua.ValueType(repl) {
	case lua.TypeString, lua.TypeNumber:
		r := lua.ToStringValue(repl)
		var out strings.Builder
		for i := 0; i < len(r); i++ {
			if r[i] != '%' {
				out.WriteByte(r[i])
				continue
			}
			i++
			if i >= len(r) {
				return "", lua.NewError(lua.String(s.Where(0) + "invalid use of '%' in replacement string"))
			}
			switch c := r[i]; {
			case c == '%':
				out.WriteByte('%')
			case c == '0':
				out.WriteString(whole)
			case c >= '1' && c <= '9':
				idx := int(c - '1')
				if idx >= len(values) {
					return "", lua.NewError(lua.String(s.Where(0) + fmt.Sprintf("invalid capture index %%%d", idx+1)))
				}
				out.WriteString(lua.ToStringValue(values[idx]))
			default:
				return "", lua.NewError(lua.String(s.Where(0) + "invalid use of '%' in replacement string"))
			}
		}
		return out.String(), nil

	case lua.TypeTable:
		v := repl.(*lua.Table).Get(values[0])
		return replacementValue(s, v, whole)

	default: // function
		results, err := s.Call(repl, values, 1)
		if err != nil {
			return "", err
		}
		var v lua.Value
		if len(results) > 0 {
			v = results[0]
		}
		return replacementValue(s, v, whole)
	}
}

// replacementValue interprets a table-lookup or function-call result
// for gsub: nil and false keep the original match, a string or number
// substitutes, anything else errors.
func replacementValue(s *lua.State, v lua.Value, whole string) (string, error) {
	switch lua.ValueType(v) {
	case lua.TypeNil:
		return whole, nil
	case lua.TypeBoolean:
		if !lua.ToBool(v) {
			return whole, nil
		}
	case lua.TypeString, lua.TypeNumber:
		return lua.ToStringValue(v), nil
	}
	return "", lua.NewError(lua.String(s.Where(0) + "invalid replacement value (a " + lua.ValueType(v).String() + ")"))
}

func stringFormat(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	format, err := checkString(s, args, 1, "format")
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	argIndex := 2
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return nil, lua.NewError(lua.String(s.Where(0) + "invalid format string to 'format'"))
		}
		if format[i] == '%' {
			out.WriteByte('%')
			continue
		}

		// Flags, width, and precision pass through to Go's formatter.
		specStart := i
		for i < len(format) && strings.IndexByte("-+ #0", format[i]) >= 0 {
			i++
		}
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		if i < len(format) && format[i] == '.' {
			i++
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
		}
		if i >= len(format) {
			return nil, lua.NewError(lua.String(s.Where(0) + "invalid format string to 'format'"))
		}
		spec := format[specStart:i]
		verb := format[i]

		switch verb {
		case 'd', 'i', 'u':
			n, err := checkNumber(s, args, argIndex, "format")
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&out, "%"+spec+"d", int64(n))
		case 'c':
			n, err := checkNumber(s, args, argIndex, "format")
			if err != nil {
				return nil, err
			}
			out.WriteByte(byte(int64(n)))
		case 'o', 'x', 'X':
			n, err := checkNumber(s, args, argIndex, "format")
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&out, "%"+spec+string(verb), int64(n))
		case 'e', 'E', 'f', 'g', 'G':
			n, err := checkNumber(s, args, argIndex, "format")
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&out, "%"+spec+string(verb), n)
		case 'q':
			str, err := s.ToDisplayString(arg(args, argIndex))
			if err != nil {
				return nil, err
			}
			out.WriteString(quoteLua(str))
		case 's':
			str, err := s.ToDisplayString(arg(args, argIndex))
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&out, "%"+spec+"s", str)
		default:
			return nil, lua.NewError(lua.String(s.Where(0) + fmt.Sprintf("invalid option '%%%c' to 'format'", verb)))
		}
		argIndex++
	}
	return []lua.Value{lua.String(out.String())}, nil
}

// quoteLua renders a string as a Lua literal the way %q does: every
// byte that would not survive a round trip through the lexer is
// escaped.
func quoteLua(s string) string {
	var out strings.Builder
	out.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			out.WriteString(`\"`)
		case '\\':
			out.WriteString(`\\`)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		case 0:
			out.WriteString(`\0`)
		default:
			if c < 0x20 {
				out.WriteString(`\`)
				out.WriteString(strconv.Itoa(int(c)))
			} else {
				out.WriteByte(c)
			}
		}
	}
	out.WriteByte('"')
	return out.String()
}
