package lua

import "testing"

func TestTableArrayMigration(t *testing.T) {
	tbl := NewTable(0, 0)
	// Insert out of order: 3 lands in the hash part, then 1 and 2
	// extend the array part and absorb 3 back out of the hash.
	tbl.Set(Number(3), String("c"))
	tbl.Set(Number(1), String("a"))
	tbl.Set(Number(2), String("b"))

	if got := tbl.Len(); got != 3 {
		t.Errorf("Len() = %d; want 3", got)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := ToStringValue(tbl.Get(Number(float64(i + 1)))); got != want {
			t.Errorf("t[%d] = %q; want %q", i+1, got, want)
		}
	}
	if len(tbl.array) != 3 {
		t.Errorf("array part holds %d entries; want 3 after hash absorption", len(tbl.array))
	}
}

func TestTableSetNilDeletes(t *testing.T) {
	tbl := NewTable(0, 0)
	tbl.Set(String("k"), Number(1))
	tbl.Set(String("k"), nil)
	if tbl.Get(String("k")) != nil {
		t.Error("setting a key to nil did not delete it")
	}

	tbl.Set(Number(1), Number(10))
	tbl.Set(Number(2), Number(20))
	tbl.Set(Number(2), nil)
	if got := tbl.Len(); got != 1 {
		t.Errorf("Len() after trailing delete = %d; want 1", got)
	}
}

func TestTableLenBorderWithHoles(t *testing.T) {
	tbl := NewTable(0, 0)
	tbl.Set(Number(1), Number(1))
	tbl.Set(Number(2), Number(2))
	tbl.Set(Number(5), Number(5))

	// Any border is valid: t[n] non-nil and t[n+1] nil.
	n := tbl.Len()
	if tbl.Get(Number(float64(n))) == nil {
		t.Errorf("Len() = %d but t[%d] is nil", n, n)
	}
	if tbl.Get(Number(float64(n+1))) != nil {
		t.Errorf("Len() = %d but t[%d] is non-nil", n, n+1)
	}
}

func TestTableNextVisitsEverything(t *testing.T) {
	tbl := NewTable(0, 0)
	tbl.Set(Number(1), String("one"))
	tbl.Set(Number(2), String("two"))
	tbl.Set(String("x"), String("ex"))
	tbl.Set(String("y"), String("why"))

	seen := make(map[string]bool)
	var key Value
	for {
		k, v, ok := tbl.Next(key)
		if !ok {
			t.Fatal("Next reported an invalid key during plain iteration")
		}
		if k == nil {
			break
		}
		if v == nil {
			t.Errorf("Next(%v) returned nil value", k)
		}
		seen[ToStringValue(k)] = true
		key = k
	}
	for _, want := range []string{"1", "2", "x", "y"} {
		if !seen[want] {
			t.Errorf("iteration never yielded key %q", want)
		}
	}
	if len(seen) != 4 {
		t.Errorf("iteration yielded %d keys; want 4", len(seen))
	}
}

func TestTableNaNAndNilKeys(t *testing.T) {
	tbl := NewTable(0, 0)
	nanKey := Number(nan())
	tbl.Set(nanKey, Number(1))
	tbl.Set(nil, Number(2))
	if tbl.Get(nanKey) != nil {
		t.Error("NaN key was stored")
	}
	if got := tbl.Len(); got != 0 {
		t.Errorf("Len() = %d after rejected keys; want 0", got)
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func TestValueEquality(t *testing.T) {
	if !RawEqual(Number(1), Number(1)) {
		t.Error("equal numbers compare unequal")
	}
	if RawEqual(Number(nan()), Number(nan())) {
		t.Error("NaN compares equal to itself")
	}
	if !RawEqual(String("a"), String("a")) {
		t.Error("equal strings compare unequal")
	}
	if RawEqual(Number(1), String("1")) {
		t.Error("number compares equal to string")
	}
	a, b := NewTable(0, 0), NewTable(0, 0)
	if RawEqual(a, b) {
		t.Error("distinct tables compare equal")
	}
	if !RawEqual(a, a) {
		t.Error("table does not compare equal to itself")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-7, "-7"},
		{1.5, "1.5"},
		{100, "100"},
		{0.1, "0.1"},
		{1e20, "1e+20"},
	}
	for _, test := range tests {
		if got := formatNumber(test.in); got != test.want {
			t.Errorf("formatNumber(%v) = %q; want %q", test.in, got, test.want)
		}
	}
}
