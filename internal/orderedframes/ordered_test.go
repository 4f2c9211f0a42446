package orderedframes

import "testing"

func TestSetGetDelete(t *testing.T) {
	m := New[string]()
	m.Set(5, "five")
	m.Set(1, "one")
	m.Set(3, "three")

	if got, ok := m.Get(3); !ok || got != "three" {
		t.Fatalf("Get(3) = %q, %v", got, ok)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}

	m.Delete(1)
	if m.Has(1) {
		t.Fatalf("expected 1 to be deleted")
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestPopMinOrder(t *testing.T) {
	m := New[int]()
	for _, k := range []int64{9, 2, 7, 1, 5} {
		m.Set(k, int(k)*10)
	}

	want := []int64{1, 2, 5, 7, 9}
	for _, w := range want {
		k, v, ok := m.PopMin()
		if !ok {
			t.Fatalf("PopMin() returned ok=false, want key %d", w)
		}
		if k != w {
			t.Fatalf("PopMin() key = %d, want %d", k, w)
		}
		if v != int(w)*10 {
			t.Fatalf("PopMin() value = %d, want %d", v, int(w)*10)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after draining", m.Len())
	}
}

func TestOverwrite(t *testing.T) {
	m := New[string]()
	m.Set(10, "a")
	m.Set(10, "b")
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if got, _ := m.Get(10); got != "b" {
		t.Fatalf("Get(10) = %q, want b", got)
	}
}

func TestMinOnEmpty(t *testing.T) {
	m := New[int]()
	if _, _, ok := m.Min(); ok {
		t.Fatalf("Min() on empty map returned ok=true")
	}
}
