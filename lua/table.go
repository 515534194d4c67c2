package lua

import (
	"math"

	"lua51.dev/vm/internal/luagc"
)

// Table is Lua's sole data-structuring type: a hybrid of a dense array
// part, for the common case of a sequence starting at key 1, and a hash
// part for everything else. Splitting the two (rather than the
// teacher's single sorted-entry-slice representation) is what spec lets
// a `#` query and `ipairs` walk run in O(1)-per-step over the common
// case instead of a binary search per access.
type Table struct {
	luagc.Header

	array []Value // array[i] holds the value for key i+1; no entry is nil
	hash  map[Value]Value
	meta  *Table

	// hashKeys records hash-part keys in insertion order, giving Next a
	// stable traversal sequence (Go's own map iteration order changes
	// between range statements). A deleted key stays in the list until
	// the next compaction; hashIndex maps each listed key to its slot.
	hashKeys  []Value
	hashIndex map[Value]int
}

// NewTable returns an empty table sized per the constructor's array/hash
// hints (nArr array-style fields, nRec other fields).
func NewTable(nArr, nRec int) *Table {
	t := &Table{}
	if nArr > 0 {
		t.array = make([]Value, 0, nArr)
	}
	if nRec > 0 {
		t.hash = make(map[Value]Value, nRec)
	}
	return t
}

func (t *Table) valueType() Type { return TypeTable }

// Metatable returns the table's metatable, or nil.
func (t *Table) Metatable() *Table { return t.meta }

// SetMetatable sets the table's metatable.
func (t *Table) SetMetatable(mt *Table) { t.meta = mt }

// Get performs a raw (metamethod-free) lookup, returning nil if key is
// absent or if key itself is nil/NaN (neither of which can be a valid
// key, so neither is ever present).
func (t *Table) Get(key Value) Value {
	if idx, ok := arrayIndex(key); ok {
		if idx >= 1 && int(idx) <= len(t.array) {
			return t.array[idx-1]
		}
		key = numberValue(idx)
	}
	if t.hash == nil {
		return nil
	}
	return t.hash[key]
}

// Set performs a raw (metamethod-free) assignment. Setting a key to nil
// removes it. Setting a NaN or nil key is a runtime error the caller
// (the VM's SETTABLE handling, or the host API) must check for first;
// Set itself treats a nil/NaN key as a no-op to stay safe for direct
// Go callers.
func (t *Table) Set(key, value Value) {
	if key == nil {
		return
	}
	if n, ok := key.(numberValue); ok && math.IsNaN(float64(n)) {
		return
	}
	if idx, ok := arrayIndex(key); ok {
		t.setArray(idx, value)
		return
	}
	if value == nil {
		if t.hash != nil {
			delete(t.hash, key)
		}
		return
	}
	t.setHash(key, value)
}

// setHash stores a non-nil value in the hash part, tracking the key's
// insertion order for Next.
func (t *Table) setHash(key, value Value) {
	if t.hash == nil {
		t.hash = make(map[Value]Value)
		t.hashIndex = make(map[Value]int)
	}
	if _, listed := t.hashIndex[key]; !listed {
		t.maybeCompactKeys()
		t.hashIndex[key] = len(t.hashKeys)
		t.hashKeys = append(t.hashKeys, key)
	}
	t.hash[key] = value
}

// maybeCompactKeys rebuilds the key list when deleted keys dominate
// it. Compaction only runs on insertion, so deleting entries during a
// traversal (which Lua allows) never reorders the walk.
func (t *Table) maybeCompactKeys() {
	if len(t.hashKeys) < 16 || len(t.hash)*2 >= len(t.hashKeys) {
		return
	}
	kept := t.hashKeys[:0]
	for _, k := range t.hashKeys {
		if _, ok := t.hash[k]; ok {
			kept = append(kept, k)
		}
	}
	t.hashKeys = kept
	clear(t.hashIndex)
	for i, k := range t.hashKeys {
		t.hashIndex[k] = i
	}
}

// setArray places value at the 1-based array index idx, growing the
// array part and migrating any contiguous successors out of the hash
// part, or shrinking it, as needed.
func (t *Table) setArray(idx int64, value Value) {
	switch {
	case idx >= 1 && int(idx) <= len(t.array):
		t.array[idx-1] = value
		if value == nil && int(idx) == len(t.array) {
			t.shrinkArray()
		}
	case idx == int64(len(t.array))+1 && value != nil:
		t.array = append(t.array, value)
		t.absorbFromHash()
	case value == nil:
		if t.hash != nil {
			delete(t.hash, numberValue(idx))
		}
	default:
		t.setHash(numberValue(idx), value)
	}
}

// absorbFromHash moves any keys immediately following the array part
// out of the hash into the array, repeatedly, so the array part stays
// maximal.
func (t *Table) absorbFromHash() {
	if t.hash == nil {
		return
	}
	for {
		next := numberValue(len(t.array) + 1)
		v, ok := t.hash[next]
		if !ok {
			return
		}
		delete(t.hash, next)
		t.array = append(t.array, v)
	}
}

// shrinkArray drops trailing nil entries from the array part.
func (t *Table) shrinkArray() {
	n := len(t.array)
	for n > 0 && t.array[n-1] == nil {
		n--
	}
	t.array = t.array[:n]
}

// arrayIndex reports whether key is a number with no fractional part
// representable as the table's dense-array index space.
func arrayIndex(key Value) (int64, bool) {
	n, ok := key.(numberValue)
	if !ok {
		return 0, false
	}
	f := float64(n)
	i := int64(f)
	if float64(i) != f {
		return 0, false
	}
	return i, true
}

// Len returns a border: an n such that t[n] is non-nil and t[n+1] is
// nil (or 0 if t[1] is nil). For a table with holes, any valid border
// may be returned, per spec — this implementation prefers the end of
// the dense array part when it holds, and falls back to a doubling
// search through the hash part otherwise.
func (t *Table) Len() int64 {
	n := int64(len(t.array))
	if t.hash == nil {
		return n
	}
	if _, ok := t.hash[numberValue(n+1)]; !ok {
		return n
	}
	// Unbounded doubling search followed by binary search, the
	// standard technique for finding a border in a sparse sequence.
	i, j := n+1, n+2
	for {
		if _, ok := t.hash[numberValue(j)]; !ok {
			break
		}
		i = j
		if j > math.MaxInt64/2 {
			// Degenerate: linear scan from i to find a real border.
			for {
				if _, ok := t.hash[numberValue(i+1)]; !ok {
					return i
				}
				i++
			}
		}
		j *= 2
	}
	for j-i > 1 {
		m := (i + j) / 2
		if _, ok := t.hash[numberValue(m)]; ok {
			i = m
		} else {
			j = m
		}
	}
	return i
}

// Next implements the iteration protocol behind `pairs`/`next`: given
// the previous key (nil to start), it returns the following key/value
// pair, or (nil, nil, true) once iteration is exhausted. Iteration
// visits the array part in index order, then the hash part in key
// insertion order — Lua leaves hash order unspecified, but successive
// Next calls must agree on one sequence for a traversal to visit every
// entry exactly once.
func (t *Table) Next(key Value) (nextKey, nextValue Value, ok bool) {
	if key == nil {
		if len(t.array) > 0 {
			return numberValue(1), t.array[0], true
		}
		return t.firstHashEntry()
	}
	if idx, isArr := arrayIndex(key); isArr && idx >= 1 && int(idx) <= len(t.array) {
		if int(idx) < len(t.array) {
			return numberValue(idx + 1), t.array[idx], true
		}
		return t.firstHashEntry()
	}
	return t.hashEntryAfter(key)
}

// hashEntryFrom returns the first live hash entry at or after slot i
// of the insertion-order key list, skipping keys deleted since they
// were listed.
func (t *Table) hashEntryFrom(i int) (Value, Value, bool) {
	for ; i < len(t.hashKeys); i++ {
		k := t.hashKeys[i]
		if v, ok := t.hash[k]; ok {
			return k, v, true
		}
	}
	return nil, nil, true
}

func (t *Table) firstHashEntry() (Value, Value, bool) {
	return t.hashEntryFrom(0)
}

func (t *Table) hashEntryAfter(key Value) (Value, Value, bool) {
	i, ok := t.hashIndex[key]
	if !ok {
		return nil, nil, false
	}
	return t.hashEntryFrom(i + 1)
}

// GCTraverse marks every live key, value, and the metatable.
func (t *Table) GCTraverse(mark func(luagc.Object)) {
	for _, v := range t.array {
		markValue(mark, v)
	}
	for k, v := range t.hash {
		markValue(mark, k)
		markValue(mark, v)
	}
	if t.meta != nil {
		mark(t.meta)
	}
}

// GCSize estimates the table's heap footprint.
func (t *Table) GCSize() int {
	return 48 + len(t.array)*16 + len(t.hash)*32
}

func markValue(mark func(luagc.Object), v Value) {
	if o, ok := v.(luagc.Object); ok {
		mark(o)
	}
}
