package lua

import "math"

// Metatable field names consulted for each metamethod event; the
// arithmetic ones are picked per opcode by arithMetamethodName.
const (
	mmIndex    = "__index"
	mmNewIndex = "__newindex"
	mmCall     = "__call"
	mmAdd      = "__add"
	mmSub      = "__sub"
	mmMul      = "__mul"
	mmDiv      = "__div"
	mmMod      = "__mod"
	mmPow      = "__pow"
	mmUnm      = "__unm"
	mmConcat   = "__concat"
	mmLen      = "__len"
	mmEq       = "__eq"
	mmLt       = "__lt"
	mmLe       = "__le"
)

// metatable returns v's metatable: a table's own, the shared string
// metatable for strings (used for the string library's colon-call
// sugar, wired up by [State.SetStringMetatable]), or nil for every
// other type.
func (s *State) metatable(v Value) *Table {
	switch v := v.(type) {
	case *Table:
		return v.meta
	case stringValue:
		return s.stringMeta
	default:
		return nil
	}
}

func (s *State) metamethod(v Value, name string) Value {
	mt := s.metatable(v)
	if mt == nil {
		return nil
	}
	return mt.Get(stringValue(name))
}

func (s *State) binaryMetamethod(v1, v2 Value, name string) Value {
	if mm := s.metamethod(v1, name); mm != nil {
		return mm
	}
	return s.metamethod(v2, name)
}

// index implements GETTABLE's full semantics: a raw hit on a table
// short-circuits; otherwise the value's (or its __index chain's)
// metatable is consulted, recursing through tables and invoking
// functions, up to maxMetaDepth links. Reading a table with a nil key
// raises, same as the write path.
func (s *State) index(t, k Value) (Value, error) {
	for range maxMetaDepth {
		if tbl, ok := t.(*Table); ok {
			if k == nil {
				return nil, s.runtimeErrorf("table index is nil")
			}
			if v := tbl.Get(k); v != nil {
				return v, nil
			}
		}
		mm := s.metamethod(t, mmIndex)
		switch h := mm.(type) {
		case nil:
			if _, isTable := t.(*Table); !isTable {
				return nil, s.runtimeErrorf("attempt to index a %s value", typeName(t))
			}
			return nil, nil
		case *Table:
			t = h
			continue
		default:
			results, err := s.call1Multi(h, []Value{t, k}, 1)
			if err != nil {
				return nil, err
			}
			return results[0], nil
		}
	}
	return nil, s.runtimeErrorf("'__index' chain too long; possible loop")
}

// setIndex implements SETTABLE's full semantics: an existing raw entry
// is overwritten directly; otherwise __newindex is consulted.
func (s *State) setIndex(t, k, v Value) error {
	if tbl, ok := t.(*Table); ok && tbl.Get(k) != nil {
		tbl.Set(k, v)
		return nil
	}
	for range maxMetaDepth {
		mm := s.metamethod(t, mmNewIndex)
		switch h := mm.(type) {
		case nil:
			tbl, ok := t.(*Table)
			if !ok {
				return s.runtimeErrorf("attempt to index a %s value", typeName(t))
			}
			if k == nil {
				return s.runtimeErrorf("table index is nil")
			}
			if n, isNum := k.(numberValue); isNum && math.IsNaN(float64(n)) {
				return s.runtimeErrorf("table index is NaN")
			}
			tbl.Set(k, v)
			return nil
		case *Table:
			if h.Get(k) != nil {
				h.Set(k, v)
				return nil
			}
			t = h
			continue
		default:
			_, err := s.call1Multi(h, []Value{t, k, v}, 0)
			return err
		}
	}
	return s.runtimeErrorf("'__newindex' chain too long; possible loop")
}

// arithmeticMetamethod dispatches an arithmetic opcode's metamethod
// fallback after the raw numeric path has failed.
func (s *State) arithmeticMetamethod(name string, a, b Value) (Value, error) {
	if mm := s.binaryMetamethod(a, b, name); mm != nil {
		results, err := s.call1Multi(mm, []Value{a, b}, 1)
		if err != nil {
			return nil, err
		}
		return results[0], nil
	}
	bad := a
	if _, ok := ToNumber(a); ok {
		bad = b
	}
	return nil, s.runtimeErrorf("attempt to perform arithmetic on a %s value", typeName(bad))
}

// concatMetamethod dispatches __concat after the raw number/string path
// fails for a pairwise concatenation step.
func (s *State) concatMetamethod(a, b Value) (Value, error) {
	if mm := s.binaryMetamethod(a, b, mmConcat); mm != nil {
		results, err := s.call1Multi(mm, []Value{a, b}, 1)
		if err != nil {
			return nil, err
		}
		return results[0], nil
	}
	bad := a
	if isConcatable(a) {
		bad = b
	}
	return nil, s.runtimeErrorf("attempt to concatenate a %s value", typeName(bad))
}

func isConcatable(v Value) bool {
	switch v.(type) {
	case numberValue, stringValue:
		return true
	default:
		return false
	}
}

// equal implements EQ's full semantics: tags must match for anything
// but the metamethod path, then raw equality, then __eq if both
// operands are tables or both are the (Lua 5.1 has no userdata here)
// same non-primitive type.
func (s *State) equal(a, b Value) (bool, error) {
	if RawEqual(a, b) {
		return true, nil
	}
	ta, tb := ValueType(a), ValueType(b)
	if ta != tb || ta != TypeTable {
		return false, nil
	}
	mm := s.binaryMetamethod(a, b, mmEq)
	if mm == nil {
		return false, nil
	}
	results, err := s.call1Multi(mm, []Value{a, b}, 1)
	if err != nil {
		return false, err
	}
	return ToBool(results[0]), nil
}

// less implements LT's full semantics: numbers compare by value,
// strings compare byte-lexicographically, otherwise __lt.
func (s *State) less(a, b Value) (bool, error) {
	if an, ok := a.(numberValue); ok {
		if bn, ok := b.(numberValue); ok {
			return float64(an) < float64(bn), nil
		}
	}
	if as, ok := a.(stringValue); ok {
		if bs, ok := b.(stringValue); ok {
			return string(as) < string(bs), nil
		}
	}
	mm := s.binaryMetamethod(a, b, mmLt)
	if mm == nil {
		return false, s.runtimeErrorf("attempt to compare %s with %s", typeName(a), typeName(b))
	}
	results, err := s.call1Multi(mm, []Value{a, b}, 1)
	if err != nil {
		return false, err
	}
	return ToBool(results[0]), nil
}

// lessEqual implements LE the same way LT does.
func (s *State) lessEqual(a, b Value) (bool, error) {
	if an, ok := a.(numberValue); ok {
		if bn, ok := b.(numberValue); ok {
			return float64(an) <= float64(bn), nil
		}
	}
	if as, ok := a.(stringValue); ok {
		if bs, ok := b.(stringValue); ok {
			return string(as) <= string(bs), nil
		}
	}
	mm := s.binaryMetamethod(a, b, mmLe)
	if mm == nil {
		return false, s.runtimeErrorf("attempt to compare %s with %s", typeName(a), typeName(b))
	}
	results, err := s.call1Multi(mm, []Value{a, b}, 1)
	if err != nil {
		return false, err
	}
	return ToBool(results[0]), nil
}

// length implements the `#` operator: byte length for strings, the
// table border for tables absent a __len override.
func (s *State) length(v Value) (Value, error) {
	switch v := v.(type) {
	case stringValue:
		return numberValue(len(v)), nil
	case *Table:
		if mm := s.metamethod(v, mmLen); mm != nil {
			results, err := s.call1Multi(mm, []Value{v}, 1)
			if err != nil {
				return nil, err
			}
			return results[0], nil
		}
		return numberValue(v.Len()), nil
	default:
		return nil, s.runtimeErrorf("attempt to get length of a %s value", typeName(v))
	}
}

// concatRange implements CONCAT A B C: the contiguous register run is
// folded right-to-left, matching Lua's right-associative `..`.
func (s *State) concatRange(values []Value) (Value, error) {
	if len(values) == 0 {
		return stringValue(""), nil
	}
	acc := values[len(values)-1]
	for i := len(values) - 2; i >= 0; i-- {
		left := values[i]
		if canDirectConcat(left) && canDirectConcat(acc) {
			acc = stringValue(concatString(left) + concatString(acc))
			continue
		}
		v, err := s.concatMetamethod(left, acc)
		if err != nil {
			return nil, err
		}
		acc = v
	}
	return acc, nil
}

func canDirectConcat(v Value) bool {
	switch v.(type) {
	case stringValue, numberValue:
		return true
	default:
		return false
	}
}

func concatString(v Value) string {
	switch v := v.(type) {
	case stringValue:
		return string(v)
	case numberValue:
		return formatNumber(float64(v))
	default:
		return ""
	}
}

// call1Multi invokes fn with args, returning exactly want results
// (padded with nil / truncated), used by every metamethod call site.
// want must be >= 0.
func (s *State) call1Multi(fn Value, args []Value, want int) ([]Value, error) {
	results, err := s.Call(fn, args, want)
	if err != nil {
		return nil, err
	}
	for len(results) < want {
		results = append(results, nil)
	}
	return results, nil
}

// Call invokes fn with args, unprotected: a Lua error propagates as a
// Go error (a *RuntimeError). numResults is the number of results
// wanted, or [MultiReturn] for all of them.
func (s *State) Call(fn Value, args []Value, numResults int) ([]Value, error) {
	frameDepth := len(s.frames)
	functionIndex := len(s.stack)
	if !s.grow(functionIndex + len(args) + 1) {
		return nil, errStackOverflow
	}
	s.stack = append(s.stack, fn)
	s.stack = append(s.stack, args...)

	isLua, err := s.prepareCall(functionIndex, numResults)
	if err != nil {
		s.unwindTo(frameDepth, functionIndex)
		return nil, err
	}
	if isLua {
		if err := s.exec(); err != nil {
			s.unwindTo(frameDepth, functionIndex)
			return nil, err
		}
	}

	results := append([]Value(nil), s.stack[functionIndex:]...)
	s.setTop(functionIndex)
	return results, nil
}

// PCall invokes fn protected: a Lua error (or a panic surfaced as one,
// e.g. a Go-level nil dereference inside a host function) is caught and
// returned as (false, []Value{errorValue}) instead of propagating.
func (s *State) PCall(fn Value, args []Value, numResults int) (ok bool, results []Value, err error) {
	frameDepth := len(s.frames)
	stackDepth := len(s.stack)
	defer func() {
		if r := recover(); r != nil {
			s.unwindTo(frameDepth, stackDepth)
			ok = false
			results = []Value{stringValue(recoverMessage(r))}
			err = nil
		}
	}()

	res, callErr := s.Call(fn, args, numResults)
	if callErr != nil {
		s.unwindTo(frameDepth, stackDepth)
		return false, []Value{errorValue(callErr)}, nil
	}
	return true, res, nil
}

func recoverMessage(r any) string {
	if e, ok := r.(error); ok {
		return e.Error()
	}
	return "internal error: " + ToStringValue(stringValue(fmtRecover(r)))
}

func fmtRecover(r any) string {
	if s, ok := r.(string); ok {
		return s
	}
	return "panic"
}

// unwindTo restores the frame and stack depth after an error or
// recovered panic escapes mid-call, closing any upvalues above the
// restored stack position.
func (s *State) unwindTo(frameDepth, stackDepth int) {
	if len(s.frames) > frameDepth {
		s.frames = s.frames[:frameDepth]
	}
	s.closeUpvalues(stackDepth)
	s.setTop(stackDepth)
}

// prepareCall sets up (but for a Lua callee, does not execute) a call
// to the function sitting at s.stack[functionIndex], with its arguments
// already placed above it on the stack. It reports whether the callee
// is a Lua closure (in which case [State.exec] must be run to actually
// execute it) and chases __call on non-function callees.
func (s *State) prepareCall(functionIndex, numResults int) (isLua bool, err error) {
	if len(s.frames) >= maxCallDepth {
		s.setTop(functionIndex)
		return false, errStackOverflow
	}

	for range maxMetaDepth {
		switch f := s.stack[functionIndex].(type) {
		case *Closure:
			if err := s.prepareLuaFrame(functionIndex, f, numResults); err != nil {
				s.setTop(functionIndex)
				return false, err
			}
			return true, nil
		case *GoFunction:
			args := append([]Value(nil), s.stack[functionIndex+1:]...)
			s.frames = append(s.frames, callFrame{functionIndex: functionIndex, base: functionIndex + 1, host: f, numResults: numResults})
			results, callErr := f.Fn(s, args)
			s.frames = s.frames[:len(s.frames)-1]
			if callErr != nil {
				s.setTop(functionIndex)
				return false, callErr
			}
			s.setTop(functionIndex)
			s.stack = append(s.stack, results...)
			if numResults != MultiReturn {
				s.setTop(functionIndex + numResults)
			}
			return false, nil
		default:
			mm := s.metamethod(f, mmCall)
			if mm == nil {
				s.setTop(functionIndex)
				return false, s.runtimeErrorf("attempt to call a %s value", typeName(f))
			}
			s.stack = append(s.stack, nil)
			copy(s.stack[functionIndex+1:], s.stack[functionIndex:len(s.stack)-1])
			s.stack[functionIndex] = mm
		}
	}
	s.setTop(functionIndex)
	return false, s.runtimeErrorf("'__call' chain too long; possible loop")
}

// prepareLuaFrame pushes the activation record for a Lua call, handling
// Lua 5.1's vararg argument-relocation algorithm: fixed parameters are
// duplicated into a fresh register window placed after every actual
// argument, leaving any extra arguments in place below it as the vararg
// region VARARG reads from.
func (s *State) prepareLuaFrame(functionIndex int, closure *Closure, numResults int) error {
	proto := closure.proto
	np := int(proto.NumParams)
	actual := len(s.stack) - functionIndex - 1

	var base, varargBase, varargCount int
	if !proto.IsVararg {
		base = functionIndex + 1
		if !s.grow(base + np) {
			return errStackOverflow
		}
		s.setTop(base + np)
	} else {
		fixedStart := functionIndex + 1
		if !s.grow(fixedStart + actual + np) {
			return errStackOverflow
		}
		s.setTop(fixedStart + actual)
		base = len(s.stack)
		for i := 0; i < np; i++ {
			var v Value
			if i < actual {
				v = s.stack[fixedStart+i]
			}
			s.stack = append(s.stack, v)
		}
		varargBase = fixedStart + np
		if actual > np {
			varargCount = actual - np
		}
	}

	if !s.grow(base + int(proto.MaxStackSize)) {
		return errStackOverflow
	}
	s.setTop(base + int(proto.MaxStackSize))

	s.frames = append(s.frames, callFrame{
		functionIndex: functionIndex,
		base:          base,
		closure:       closure,
		numResults:    numResults,
		varargBase:    varargBase,
		varargCount:   varargCount,
	})
	return nil
}

// finishCall pops the current (Lua) frame. The frame's return values
// occupy the stack from first to the current top; they are copied down
// to the frame's functionIndex and the stack top is adjusted to the
// caller's expectation, per spec's RETURN handling.
func (s *State) finishCall(first int) {
	frame := s.frame()
	want := frame.numResults
	results := s.stack[first:]
	dest := frame.functionIndex

	n := copy(s.stack[dest:], results)
	if want == MultiReturn {
		want = n
	}
	s.setTop(dest + want)
	s.frames = s.frames[:len(s.frames)-1]
}
