package consolidate

import "testing"

func TestRollingWindowEvictsOldestWhenFull(t *testing.T) {
	w := NewRollingWindow[int](3)
	w.Add(1)
	w.Add(2)
	w.Add(3)
	w.Add(4) // evicts 1

	got := w.All()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRollingWindowCurrentAndIndex(t *testing.T) {
	w := NewRollingWindow[int](3)
	w.Add(10)
	w.Add(20)
	w.Add(30)

	cur, ok := w.Current()
	if !ok || cur != 30 {
		t.Fatalf("Current() = (%d, %v), want (30, true)", cur, ok)
	}
	prev, ok := w.Index(1)
	if !ok || prev != 20 {
		t.Fatalf("Index(1) = (%d, %v), want (20, true)", prev, ok)
	}
	if _, ok := w.Index(5); ok {
		t.Error("Index(5) should be out of range")
	}
}

func TestRollingWindowEmpty(t *testing.T) {
	w := NewRollingWindow[int](3)
	if _, ok := w.Current(); ok {
		t.Error("Current() on empty window should report false")
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}
}
