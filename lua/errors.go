package lua

import "fmt"

// RuntimeError is a Lua runtime error that escaped to the host without
// being caught by a protected call: the error Value (usually a string,
// but any value is legal in Lua) plus the formatted traceback-free
// message, per the error format spec §7 mandates: "<file>:<line>: <message>".
type RuntimeError struct {
	Value Value
}

func (e *RuntimeError) Error() string {
	return ToStringValue(e.Value)
}

// errorValue converts a Go error into the Value a protected call
// returns as its error result: a [RuntimeError]'s own Value is
// unwrapped so round-tripping a Lua error through Go's error interface
// doesn't lose its original type (e.g. a table thrown by `error`).
func errorValue(err error) Value {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RuntimeError); ok {
		return re.Value
	}
	return stringValue(err.Error())
}

// runtimeErrorf builds a position-prefixed runtime error the way every
// VM-raised error is formatted: "<source>:<line>: <message>".
func (s *State) runtimeErrorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if loc := s.currentLocation(); loc != "" {
		msg = loc + ": " + msg
	}
	return &RuntimeError{Value: stringValue(msg)}
}

// NewError wraps an arbitrary Lua value as the error a host function
// returns to raise it, preserving non-string error values across the
// protected-call boundary the way `error(t)` requires.
func NewError(v Value) error {
	return &RuntimeError{Value: v}
}

// Where formats the source position of the Lua code level frames up
// from the innermost executing Lua frame (0 is that frame itself), as
// "<file>:<line>: ", or "" when no Lua frame is that deep. Host
// functions use it to prefix error messages with their caller's
// position, as the standard error function does.
func (s *State) Where(level int) string {
	n := 0
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := &s.frames[i]
		if f.closure == nil {
			continue
		}
		if n < level {
			n++
			continue
		}
		line := 0
		pc := f.pc - 1
		if pc >= 0 && pc < len(f.closure.proto.LineInfo) {
			line = int(f.closure.proto.LineInfo[pc])
		}
		return fmt.Sprintf("%s:%d: ", f.closure.proto.Source.DisplayName(), line)
	}
	return ""
}

// currentLocation formats the currently executing Lua frame's source
// and line, or "" if the topmost frame is a host (Go) call.
func (s *State) currentLocation() string {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := &s.frames[i]
		if f.closure == nil {
			continue
		}
		line := 0
		pc := f.pc - 1
		if pc >= 0 && pc < len(f.closure.proto.LineInfo) {
			line = int(f.closure.proto.LineInfo[pc])
		}
		return fmt.Sprintf("%s:%d", f.closure.proto.Source.DisplayName(), line)
	}
	return ""
}

var errStackOverflow = fmt.Errorf("stack overflow")
