package stdlib

import (
	"strings"

	"lua51.dev/vm/lua"
)

// OpenTable installs the table library.
func OpenTable(s *lua.State) {
	s.RegisterLib(TableLibraryName, map[string]lua.Function{
		"concat": tableConcat,
		"getn":   tableGetN,
		"insert": tableInsert,
		"remove": tableRemove,
		"sort":   tableSort,
	})
}

func tableGetN(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "getn")
	if err != nil {
		return nil, err
	}
	return []lua.Value{lua.Number(float64(t.Len()))}, nil
}

func tableInsert(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "insert")
	if err != nil {
		return nil, err
	}
	n := int(t.Len())
	switch len(args) {
	case 2:
		t.Set(lua.Number(float64(n+1)), args[1])
		return nil, nil
	case 3:
		pos, err := checkInt(s, args, 2, "insert")
		if err != nil {
			return nil, err
		}
		if pos < 1 || pos > n+1 {
			return nil, argError(s, 2, "insert", "position out of bounds")
		}
		for i := n; i >= pos; i-- {
			t.Set(lua.Number(float64(i+1)), t.Get(lua.Number(float64(i))))
		}
		t.Set(lua.Number(float64(pos)), args[2])
		return nil, nil
	default:
		return nil, lua.NewError(lua.String(s.Where(0) + "wrong number of arguments to 'insert'"))
	}
}

func tableRemove(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "remove")
	if err != nil {
		return nil, err
	}
	n := int(t.Len())
	pos, err := optInt(s, args, 2, "remove", n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []lua.Value{nil}, nil
	}
	if pos < 1 || pos > n {
		return nil, argError(s, 2, "remove", "position out of bounds")
	}
	removed := t.Get(lua.Number(float64(pos)))
	for i := pos; i < n; i++ {
		t.Set(lua.Number(float64(i)), t.Get(lua.Number(float64(i+1))))
	}
	t.Set(lua.Number(float64(n)), nil)
	return []lua.Value{removed}, nil
}

func tableConcat(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "concat")
	if err != nil {
		return nil, err
	}
	sep, err := optString(s, args, 2, "concat", "")
	if err != nil {
		return nil, err
	}
	i, err := optInt(s, args, 3, "concat", 1)
	if err != nil {
		return nil, err
	}
	j, err := optInt(s, args, 4, "concat", int(t.Len()))
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	for k := i; k <= j; k++ {
		v := t.Get(lua.Number(float64(k)))
		switch lua.ValueType(v) {
		case lua.TypeString, lua.TypeNumber:
			out.WriteString(lua.ToStringValue(v))
		default:
			return nil, lua.NewError(lua.String(s.Where(0) + "invalid value (at index " + lua.ToStringValue(lua.Number(float64(k))) + ") in table for 'concat'"))
		}
		if k < j {
			out.WriteString(sep)
		}
	}
	return []lua.Value{lua.String(out.String())}, nil
}

func tableSort(s *lua.State, args []lua.Value) ([]lua.Value, error) {
	t, err := checkTable(s, args, 1, "sort")
	if err != nil {
		return nil, err
	}
	var comp lua.Value
	if arg(args, 2) != nil {
		comp, err = checkFunction(s, args, 2, "sort")
		if err != nil {
			return nil, err
		}
	}

	n := int(t.Len())
	values := make([]lua.Value, n)
	for i := 0; i < n; i++ {
		values[i] = t.Get(lua.Number(float64(i + 1)))
	}

	less := func(a, b lua.Value) (bool, error) {
		if comp != nil {
			results, err := s.Call(comp, []lua.Value{a, b}, 1)
			if err != nil {
				return false, err
			}
			return len(results) > 0 && lua.ToBool(results[0]), nil
		}
		if lua.ValueType(a) == lua.TypeNumber && lua.ValueType(b) == lua.TypeNumber {
			an, _ := lua.ToNumber(a)
			bn, _ := lua.ToNumber(b)
			return an < bn, nil
		}
		if lua.ValueType(a) == lua.TypeString && lua.ValueType(b) == lua.TypeString {
			return lua.ToStringValue(a) < lua.ToStringValue(b), nil
		}
		return false, lua.NewError(lua.String(s.Where(0) + "attempt to compare " + lua.ValueType(a).String() + " with " + lua.ValueType(b).String()))
	}

	if err := sortValues(values, less); err != nil {
		return nil, err
	}
	for i, v := range values {
		t.Set(lua.Number(float64(i+1)), v)
	}
	return nil, nil
}

// sortValues is an in-place merge sort. A comparison callback can run
// arbitrary Lua (and can error), which rules out the standard
// library's sort package; merge sort also keeps the comparison count
// predictable for badly behaved comparators.
func sortValues(v []lua.Value, less func(a, b lua.Value) (bool, error)) error {
	if len(v) < 2 {
		return nil
	}
	mid := len(v) / 2
	left := append([]lua.Value(nil), v[:mid]...)
	right := append([]lua.Value(nil), v[mid:]...)
	if err := sortValues(left, less); err != nil {
		return err
	}
	if err := sortValues(right, less); err != nil {
		return err
	}

	i, j := 0, 0
	for k := range v {
		switch {
		case i >= len(left):
			v[k] = right[j]
			j++
		case j >= len(right):
			v[k] = left[i]
			i++
		default:
			rightLess, err := less(right[j], left[i])
			if err != nil {
				return err
			}
			if rightLess {
				v[k] = right[j]
				j++
			} else {
				v[k] = left[i]
				i++
			}
		}
	}
	return nil
}
