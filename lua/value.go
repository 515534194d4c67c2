// Package lua implements a Lua 5.1 execution environment: a register-based
// virtual machine operating on compiled [luacode.Prototype] chunks, a
// tagged Value type, tables, closures, and the host-facing [State] API
// used to embed Lua in a Go program.
package lua

import (
	"fmt"
	"strconv"

	"lua51.dev/vm/internal/luagc"
	"lua51.dev/vm/internal/lualex"
)

// Type identifies the dynamic type of a [Value], per the six types
// Lua 5.1 defines: nil, boolean, number, string, table, and function.
type Type int

const (
	TypeNil Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed Lua value. Unlike Lua 5.4, numbers carry
// only one representation: a float64, matching Lua 5.1's pre-integer
// number model. The nil value is the untyped Go nil; booleans, numbers,
// and strings are distinct named types so a type switch recovers the
// Lua type directly, following the same tagging technique as the
// teacher's own value sum type.
type Value interface {
	valueType() Type
}

type booleanValue bool

func (booleanValue) valueType() Type { return TypeBoolean }

type numberValue float64

func (numberValue) valueType() Type { return TypeNumber }

type stringValue string

func (stringValue) valueType() Type { return TypeString }

// Bool returns the Value for a Go bool.
func Bool(b bool) Value { return booleanValue(b) }

// Number returns the Value for a float64.
func Number(n float64) Value { return numberValue(n) }

// String returns the Value for a Go string.
func String(s string) Value { return stringValue(s) }

// Nil is the Lua nil value.
var Nil Value = nil

// IsNil reports whether v is nil.
func IsNil(v Value) bool { return v == nil }

// ValueType returns v's dynamic [Type]. A nil Value is TypeNil.
func ValueType(v Value) Type {
	if v == nil {
		return TypeNil
	}
	return v.valueType()
}

// ToBool reports v's truthiness: everything except nil and false is
// true, matching Lua's (not C's, not JavaScript's) truthiness rule.
func ToBool(v Value) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(booleanValue); ok {
		return bool(b)
	}
	return true
}

// ToNumber coerces v to a float64 following Lua 5.1's arithmetic
// coercion rules: numbers convert directly, strings parse as Lua
// numerals, everything else fails.
func ToNumber(v Value) (float64, bool) {
	switch v := v.(type) {
	case numberValue:
		return float64(v), true
	case stringValue:
		return stringToNumber(string(v))
	default:
		return 0, false
	}
}

func stringToNumber(s string) (float64, bool) {
	n, err := lualex.ParseNumber(trimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// ToStringValue converts v to its display string the way `tostring` and
// string coercion in concatenation/numeric-opcode fallback do: numbers
// format with Lua's `%.14g`-equivalent rule, strings pass through,
// booleans and nil use their literal spelling, and tables/functions use
// `<type>: 0x...`-style identity tags.
func ToStringValue(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case booleanValue:
		if v {
			return "true"
		}
		return "false"
	case numberValue:
		return formatNumber(float64(v))
	case stringValue:
		return string(v)
	case *Table:
		return fmt.Sprintf("table: %p", v)
	case *Closure:
		return fmt.Sprintf("function: %p", v)
	case *GoFunction:
		return fmt.Sprintf("function: builtin: %p", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatNumber matches Lua 5.1's LUAI_NUMFMT, "%.14g", while printing
// integral values without a trailing ".0" the way Lua's tostring does
// for its one float type.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', 14, 64)
}

// RawEqual reports whether a and b are equal without consulting any
// `__eq` metamethod: numbers compare by value (NaN never equal to
// itself), strings by content, booleans by value, tables/functions by
// identity.
func RawEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.valueType() != b.valueType() {
		return false
	}
	switch av := a.(type) {
	case numberValue:
		return av == b.(numberValue)
	case stringValue:
		return av == b.(stringValue)
	case booleanValue:
		return av == b.(booleanValue)
	default:
		return a == b
	}
}

// typeName reports the Lua type name of v, used in error messages.
func typeName(v Value) string {
	return ValueType(v).String()
}

var _ luagc.Object = (*Table)(nil)
var _ luagc.Object = (*Closure)(nil)
var _ luagc.Object = (*Upvalue)(nil)
