package luagc

import "testing"

type fakeObject struct {
	Header
	refs []Object
	size int
}

func (f *fakeObject) GCTraverse(mark func(Object)) {
	for _, r := range f.refs {
		mark(r)
	}
}

func (f *fakeObject) GCSize() int { return f.size }

func TestCollectSweepsUnreferenced(t *testing.T) {
	h := NewHeap()
	root := &fakeObject{size: 8}
	garbage := &fakeObject{size: 8}
	h.Register(root)
	h.Register(garbage)

	h.Collect(func(mark func(Object)) {
		mark(root)
	})

	if got, want := h.Len(), 1; got != want {
		t.Errorf("after collect, Len() = %d; want %d", got, want)
	}
	if root.GCColor() != White {
		t.Errorf("root.GCColor() = %v; want White after sweep flip", root.GCColor())
	}
}

func TestCollectKeepsTransitiveReferences(t *testing.T) {
	h := NewHeap()
	leaf := &fakeObject{size: 4}
	mid := &fakeObject{size: 4, refs: []Object{leaf}}
	root := &fakeObject{size: 4, refs: []Object{mid}}
	h.Register(leaf)
	h.Register(mid)
	h.Register(root)

	h.Collect(func(mark func(Object)) {
		mark(root)
	})

	if got, want := h.Len(), 3; got != want {
		t.Errorf("after collect, Len() = %d; want %d (root, mid, leaf all reachable)", got, want)
	}
}

func TestCollectHandlesCycles(t *testing.T) {
	h := NewHeap()
	a := &fakeObject{size: 4}
	b := &fakeObject{size: 4}
	a.refs = []Object{b}
	b.refs = []Object{a}
	h.Register(a)
	h.Register(b)

	// Neither a nor b is rooted: the cycle should not keep itself alive.
	h.Collect(func(mark func(Object)) {})

	if got, want := h.Len(), 0; got != want {
		t.Errorf("after collect, Len() = %d; want %d (unrooted cycle collected)", got, want)
	}
}

func TestShouldCollectThresholdAndPause(t *testing.T) {
	h := NewHeap()
	h.SetThreshold(16)
	h.SetPauseMultiplier(2)

	small := &fakeObject{size: 8}
	h.Register(small)
	if h.ShouldCollect() {
		t.Fatal("ShouldCollect() = true before threshold reached")
	}

	big := &fakeObject{size: 16}
	h.Register(big)
	if !h.ShouldCollect() {
		t.Fatal("ShouldCollect() = false after threshold reached")
	}

	h.Collect(func(mark func(Object)) {
		mark(small)
		mark(big)
	})
	if got, want := h.Count(), 24; got != want {
		t.Errorf("Count() = %d; want %d", got, want)
	}
	if h.threshold < h.minThreshold {
		t.Errorf("threshold %d fell below minThreshold %d", h.threshold, h.minThreshold)
	}
}
