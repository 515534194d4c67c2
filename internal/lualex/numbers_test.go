package lualex

import "testing"

func TestParseInt(t *testing.T) {
	tests := []struct {
		s    string
		want int64
		bad  bool
	}{
		{s: "3", want: 3},
		{s: "345", want: 345},
		{s: "-12", want: -12},
		{s: "0xff", want: 0xff},
		{s: "0xBEBADA", want: 0xBEBADA},
		{s: "  42  ", want: 42},
		{s: "not a number", bad: true},
	}
	for _, test := range tests {
		got, err := ParseInt(test.s)
		if test.bad {
			if err == nil {
				t.Errorf("ParseInt(%q) = %d, <nil>; want error", test.s, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInt(%q) returned error: %v", test.s, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseInt(%q) = %d; want %d", test.s, got, test.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		s    string
		want float64
		bad  bool
	}{
		{s: "3.0", want: 3.0},
		{s: "3.1416", want: 3.1416},
		{s: "314.16e-2", want: 3.1416},
		{s: "0.31416E1", want: 3.1416},
		{s: "34e1", want: 340},
		{s: "0xff", want: 255},
		{s: "5.", want: 5},
		{s: ".5", want: 0.5},
		{s: "Inf", bad: true},
		{s: "nan", bad: true},
		{s: "0x0.1E", bad: true},
		{s: "0xA23p-4", bad: true},
	}
	for _, test := range tests {
		got, err := ParseNumber(test.s)
		if test.bad {
			if err == nil {
				t.Errorf("ParseNumber(%q) = %v, <nil>; want error", test.s, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNumber(%q) returned error: %v", test.s, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseNumber(%q) = %v; want %v", test.s, got, test.want)
		}
	}
}
