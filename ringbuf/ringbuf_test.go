package ringbuf

import (
	"bytes"
	"testing"
)

func sample(n int, start byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = start + byte(i)
	}
	return p
}

func TestPushBackPopFrontIdentity(t *testing.T) {
	b := New(8)
	in := sample(32, 1)
	b.PushBack(in)
	out := make([]byte, len(in))
	if n := b.PeekFront(out, 0); n != len(in) {
		t.Fatalf("peek got %d bytes, want %d", n, len(in))
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("push/peek not identity: got %v want %v", out, in)
	}
	b.PopFront(len(in))
	if b.Size() != 0 {
		t.Fatalf("size after pop = %d, want 0", b.Size())
	}
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	b := New(4)
	for i := 0; i < 10; i++ {
		b.PushBack(sample(4, byte(i)))
	}
	if b.Size() != 40 {
		t.Fatalf("size = %d, want 40", b.Size())
	}
	out := make([]byte, 40)
	b.PeekFront(out, 0)
	for i := 0; i < 10; i++ {
		want := sample(4, byte(i))
		if !bytes.Equal(out[i*4:i*4+4], want) {
			t.Fatalf("chunk %d mismatch: got %v want %v", i, out[i*4:i*4+4], want)
		}
	}
}

func TestPlaceAtExtendsAndOverwrites(t *testing.T) {
	b := New(8)
	b.PushBack(sample(4, 0))
	b.PlaceAt(8, sample(4, 100))
	if b.Size() != 12 {
		t.Fatalf("size = %d, want 12", b.Size())
	}
	out := make([]byte, 12)
	b.PeekFront(out, 0)
	if !bytes.Equal(out[8:12], sample(4, 100)) {
		t.Fatalf("placed bytes mismatch: %v", out[8:12])
	}

	b.PlaceAt(0, sample(4, 50))
	if b.Size() != 12 {
		t.Fatalf("size after overwrite = %d, want 12", b.Size())
	}
	b.PeekFront(out, 0)
	if !bytes.Equal(out[0:4], sample(4, 50)) {
		t.Fatalf("overwritten bytes mismatch: %v", out[0:4])
	}
}

func TestPushFrontPrepends(t *testing.T) {
	b := New(8)
	b.PushBack(sample(4, 10))
	b.PushFront(sample(4, 0))
	out := make([]byte, 8)
	b.PeekFront(out, 0)
	if !bytes.Equal(out, append(sample(4, 0), sample(4, 10)...)) {
		t.Fatalf("push front order wrong: %v", out)
	}
}
