package source

import (
	"encoding/binary"
	"math"

	"github.com/richinsley/mixcore/ringbuf"
)

// chanBuffer is a per-channel circular float32 sample buffer, built
// directly on ringbuf.Buffer's generic byte ring (spec.md §9's "generic
// byte ring buffer" primitive) with float32<->bytes conversion at the
// boundary, since every push/pop site in this package works in
// per-channel sample terms rather than raw bytes.
type chanBuffer struct {
	buf  *ringbuf.Buffer
	size int // bytes currently stored; mirrors buf.Size(), checked directly against MaxBufSize
}

func newChanBuffer() *chanBuffer {
	return &chanBuffer{buf: ringbuf.New(1024)}
}

func samplesToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToSamples(b []byte, dst []float32) int {
	n := len(b) / 4
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return n
}

func (b *chanBuffer) pushBack(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.buf.PushBack(samplesToBytes(samples))
	b.size = b.buf.Size()
}

func (b *chanBuffer) placeAt(offsetSamples int, samples []float32) {
	b.buf.PlaceAt(offsetSamples*4, samplesToBytes(samples))
	b.size = b.buf.Size()
}

// truncateTo discards any samples past sampleCount (the "truncate the
// buffer tail beyond end-of-write" step of place).
func (b *chanBuffer) truncateTo(sampleCount int) {
	byteCount := sampleCount * 4
	if byteCount < b.buf.Size() {
		b.buf.PopBack(b.buf.Size() - byteCount)
		b.size = b.buf.Size()
	}
}

func (b *chanBuffer) peekFront(dst []float32) int {
	raw := make([]byte, len(dst)*4)
	n := b.buf.PeekFront(raw, 0)
	return bytesToSamples(raw[:n], dst)
}

func (b *chanBuffer) popFront(count int) {
	b.buf.PopFront(count * 4)
	b.size = b.buf.Size()
}

func (b *chanBuffer) clear() {
	b.buf.Clear()
	b.size = 0
}

func (b *chanBuffer) sampleCount() int { return b.buf.Size() / 4 }
