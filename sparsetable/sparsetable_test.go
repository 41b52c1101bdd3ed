package sparsetable

import "testing"

func TestGetOnEmptyIsNil(t *testing.T) {
	tbl := New[int](16)
	if got := tbl.Get(5); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestInsertAndGet(t *testing.T) {
	tbl := New[int](16)
	v := 42
	tbl.Insert(3, &v)
	if got := tbl.Get(3); got == nil || *got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
	if got := tbl.Get(4); got != nil {
		t.Fatalf("expected nil at untouched slot, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	tbl := New[int](4)
	v := 7
	tbl.Insert(0, &v)
	old := tbl.Remove(0)
	if old == nil || *old != 7 {
		t.Fatalf("expected removed value 7, got %v", old)
	}
	if got := tbl.Get(0); got != nil {
		t.Fatalf("expected nil after remove, got %v", got)
	}
}

func TestGetOrDefault(t *testing.T) {
	tbl := New[int](4)
	got := tbl.GetOrDefault(1)
	if *got != 0 {
		t.Fatalf("expected zero value, got %v", *got)
	}
	*got = 9
	if second := tbl.GetOrDefault(1); *second != 9 {
		t.Fatalf("expected same slot to persist, got %v", *second)
	}
}

func TestClear(t *testing.T) {
	tbl := New[int](4)
	v := 1
	tbl.Insert(0, &v)
	tbl.Insert(1, &v)
	tbl.Clear()
	if tbl.Get(0) != nil || tbl.Get(1) != nil {
		t.Fatalf("expected all slots empty after Clear")
	}
}
