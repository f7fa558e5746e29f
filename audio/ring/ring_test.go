package ring

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(16)

	in := []float32{1, 2, 3, 4, 5}
	if n := b.Write(in); n != len(in) {
		t.Fatalf("Write: got %d, want %d", n, len(in))
	}

	out := make([]float32, len(in))
	if n := b.Read(out); n != len(in) {
		t.Fatalf("Read: got %d, want %d", n, len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("Read[%d]: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestWriteDropsOnFull(t *testing.T) {
	b := New(4) // rounds to 4
	full := make([]float32, 10)
	for i := range full {
		full[i] = float32(i)
	}

	n := b.Write(full)
	if n != b.Cap() {
		t.Fatalf("Write: got %d, want cap %d", n, b.Cap())
	}
	if b.Free() != 0 {
		t.Fatalf("Free: got %d, want 0", b.Free())
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	b := New(8)
	b.Write([]float32{1, 2, 3, 4})

	peeked := make([]float32, 4)
	if n := b.Peek(peeked); n != 4 {
		t.Fatalf("Peek: got %d, want 4", n)
	}
	if b.Len() != 4 {
		t.Fatalf("Len after Peek: got %d, want 4", b.Len())
	}

	read := make([]float32, 4)
	b.Read(read)
	for i := range peeked {
		if peeked[i] != read[i] {
			t.Fatalf("Peek/Read mismatch at %d: %v vs %v", i, peeked[i], read[i])
		}
	}
}

func TestAdvanceConsumesWithoutCopy(t *testing.T) {
	b := New(8)
	b.Write([]float32{1, 2, 3, 4, 5, 6})
	b.Advance(3)
	if b.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", b.Len())
	}

	out := make([]float32, 3)
	b.Read(out)
	want := []float32{4, 5, 6}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d]: got %v, want %v", i, out[i], want[i])
		}
	}
}
