// Package stdlib provides the standard-library collaborators of the
// core runtime: the basic functions (print, pairs, pcall, ...), the
// string library with Lua pattern matching, and the math, table, os,
// and io libraries. Each library registers plain host functions
// through the lua package's public API; the core has no dependency
// back on this package.
package stdlib

import (
	"io"
	"os"

	"lua51.dev/vm/lua"
)

// Options configures where the impure parts of the library read and
// write. The zero value uses the process's standard streams.
type Options struct {
	// Output receives print and io.write output (os.Stdout if nil).
	Output io.Writer
	// Input backs io.read (os.Stdin if nil).
	Input io.Reader
}

func (o *Options) output() io.Writer {
	if o == nil || o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

func (o *Options) input() io.Reader {
	if o == nil || o.Input == nil {
		return os.Stdin
	}
	return o.Input
}

// Library names, as they appear in the globals table.
const (
	StringLibraryName = "string"
	MathLibraryName   = "math"
	TableLibraryName  = "table"
	OSLibraryName     = "os"
	IOLibraryName     = "io"
)

// OpenAll installs every library this package provides: the basic
// functions directly into the globals table, and the named libraries
// as global tables.
func OpenAll(s *lua.State, opts *Options) {
	OpenBase(s, opts)
	OpenString(s)
	OpenMath(s)
	OpenTable(s)
	OpenOS(s)
	OpenIO(s, opts)
}

// Open installs the subset of libraries named in libs ("base" for the
// basic functions), preserving OpenAll's ordering. Unknown names are
// ignored.
func Open(s *lua.State, opts *Options, libs ...string) {
	want := make(map[string]bool, len(libs))
	for _, name := range libs {
		want[name] = true
	}
	if want["base"] {
		OpenBase(s, opts)
	}
	if want[StringLibraryName] {
		OpenString(s)
	}
	if want[MathLibraryName] {
		OpenMath(s)
	}
	if want[TableLibraryName] {
		OpenTable(s)
	}
	if want[OSLibraryName] {
		OpenOS(s)
	}
	if want[IOLibraryName] {
		OpenIO(s, opts)
	}
}
