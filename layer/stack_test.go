package layer

import "testing"

func newTestLayer(name string) *Layer {
	return &Layer{Name: name, Enabled: true}
}

func TestRemoveActiveAdjustsIndex(t *testing.T) {
	s := NewStack()
	s.Push(newTestLayer("a"))
	s.Push(newTestLayer("b"))
	s.Push(newTestLayer("c"))
	s.SetActive(2)

	if _, err := s.Remove(2); err != nil {
		t.Fatal(err)
	}
	if s.Active() != 1 {
		t.Fatalf("active = %d, want 1 (min(i, len-1))", s.Active())
	}
}

func TestRemoveBeforeActiveShiftsDown(t *testing.T) {
	s := NewStack()
	s.Push(newTestLayer("a"))
	s.Push(newTestLayer("b"))
	s.Push(newTestLayer("c"))
	s.SetActive(2)

	if _, err := s.Remove(0); err != nil {
		t.Fatal(err)
	}
	if s.Active() != 1 {
		t.Fatalf("active = %d, want 1 (active-1)", s.Active())
	}
}

func TestRemoveAfterActiveUnchanged(t *testing.T) {
	s := NewStack()
	s.Push(newTestLayer("a"))
	s.Push(newTestLayer("b"))
	s.Push(newTestLayer("c"))
	s.SetActive(0)

	if _, err := s.Remove(2); err != nil {
		t.Fatal(err)
	}
	if s.Active() != 0 {
		t.Fatalf("active = %d, want unchanged 0", s.Active())
	}
}

func TestPushRejectsOverCapacity(t *testing.T) {
	s := NewStack()
	for i := 0; i < MaxLayers; i++ {
		if err := s.Push(newTestLayer("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Push(newTestLayer("overflow")); err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestMoveSkipsPinnedSpan(t *testing.T) {
	s := NewStack()
	s.Push(newTestLayer("a"))
	pinned := newTestLayer("b")
	pinned.Pinned = true
	s.Push(pinned)
	s.Push(newTestLayer("c"))

	if err := s.Move(0, 2); err != nil {
		t.Fatal(err)
	}
	if s.At(1) != pinned {
		t.Fatalf("pinned layer moved: got %v at index 1", s.At(1).Name)
	}
}
