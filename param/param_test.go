package param

import "testing"

func TestSetClampsToBounds(t *testing.T) {
	s := NewStore()
	if err := s.Define(FloatDef("a", 0, 1, 0.5)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFloat("a", 5); err != nil {
		t.Fatal(err)
	}
	v, _ := s.Get("a")
	if v.Components()[0] != 1 {
		t.Fatalf("a = %v, want clamped to 1", v.Components()[0])
	}
}

func TestDefineRejectsOverBudget(t *testing.T) {
	s := NewStore()
	for i := 0; i < 4; i++ {
		if err := s.Define(ColorDef(string(rune('a'+i)), [4]float64{1, 0, 0, 1})); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Define(FloatDef("overflow", 0, 1, 0)); err == nil {
		t.Fatal("expected budget error, got nil")
	}
}

func TestPackIsDeterministic(t *testing.T) {
	s := NewStore()
	s.Define(FloatDef("a", 0, 1, 0.5))
	s.Define(ColorDef("c", [4]float64{1, 0, 0, 1}))

	var a, b [maxLanes]float32
	s.Pack(&a)
	s.Pack(&b)
	if a != b {
		t.Fatalf("Pack not deterministic: %v != %v", a, b)
	}
	if a[0] != 0.5 || a[1] != 1 || a[2] != 0 || a[3] != 0 || a[4] != 1 {
		t.Fatalf("unexpected pack layout: %v", a)
	}
}

func TestSetRejectsTypeMismatch(t *testing.T) {
	s := NewStore()
	s.Define(FloatDef("a", 0, 1, 0))
	if err := s.Set("a", KindColor, []float64{1, 1, 1, 1}); err == nil {
		t.Fatal("expected type-mismatch error")
	}
}
