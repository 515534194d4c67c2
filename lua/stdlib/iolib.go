package stdlib

import (
	"bufio"
	"io"
	"strings"

	"lua51.dev/vm/lua"
)

// OpenIO installs the minimal io library: write to the configured
// output and line/number/whole-stream reads from the configured input.
func OpenIO(s *lua.State, opts *Options) {
	out := opts.output()
	in := bufio.NewReader(opts.input())

	s.RegisterLib(IOLibraryName, map[string]lua.Function{
		"write": newIOWrite(out),
		"read":  newIORead(in),
	})
}

func newIOWrite(out io.Writer) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		for i := range args {
			str, err := checkString(s, args, i+1, "write")
			if err != nil {
				return nil, err
			}
			if _, werr := io.WriteString(out, str); werr != nil {
				return []lua.Value{nil, lua.String(werr.Error())}, nil
			}
		}
		return nil, nil
	}
}

func newIORead(in *bufio.Reader) lua.Function {
	return func(s *lua.State, args []lua.Value) ([]lua.Value, error) {
		format, err := optString(s, args, 1, "read", "*l")
		if err != nil {
			return nil, err
		}
		switch strings.TrimPrefix(format, "*") {
		case "l":
			line, rerr := in.ReadString('\n')
			if rerr != nil && line == "" {
				return []lua.Value{nil}, nil
			}
			return []lua.Value{lua.String(strings.TrimSuffix(line, "\n"))}, nil
		case "n":
			var n float64
			// Skip leading blanks, then parse a numeral the scanner way.
			for {
				b, rerr := in.ReadByte()
				if rerr != nil {
					return []lua.Value{nil}, nil
				}
				if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
					in.UnreadByte()
					break
				}
			}
			var numeral strings.Builder
			for {
				b, rerr := in.ReadByte()
				if rerr != nil {
					break
				}
				if (b >= '0' && b <= '9') || b == '.' || b == '-' || b == '+' ||
					b == 'e' || b == 'E' || b == 'x' || b == 'X' || isHex(b) {
					numeral.WriteByte(b)
					continue
				}
				in.UnreadByte()
				break
			}
			if v, ok := lua.ToNumber(lua.String(numeral.String())); ok {
				n = v
			} else {
				return []lua.Value{nil}, nil
			}
			return []lua.Value{lua.Number(n)}, nil
		case "a":
			data, _ := io.ReadAll(in)
			return []lua.Value{lua.String(string(data))}, nil
		default:
			return nil, argError(s, 1, "read", "invalid format")
		}
	}
}
