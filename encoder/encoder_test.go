package encoder

import (
	"testing"
)

type fakeCodec struct {
	n int
}

func (f *fakeCodec) Encode(fr Frame) (*Packet, error) {
	f.n++
	return &Packet{Data: []byte{byte(f.n)}, DTSUsec: int64(f.n) * 1000, Keyframe: f.n == 1}, nil
}
func (f *fakeCodec) Flush() []*Packet { return nil }
func (f *fakeCodec) Close() error     { return nil }

func TestVideoEncoderEstablishesStartTSOnFirstFrame(t *testing.T) {
	v := NewVideoEncoder(&fakeCodec{})
	v.Start()
	if v.StartTS() != 0 {
		t.Fatalf("start ts should be unset before any frame")
	}
	if err := v.ReceiveFrame(Frame{Timestamp: 5_000_000_000}); err != nil {
		t.Fatal(err)
	}
	if v.StartTS() != 5_000_000_000 {
		t.Fatalf("start ts = %d, want 5e9", v.StartTS())
	}
}

func TestAudioEncoderBuffersUntilVideoStarts(t *testing.T) {
	v := NewVideoEncoder(&fakeCodec{})
	v.Start()

	var got []*Packet
	a := NewAudioEncoder(&fakeCodec{}, v, 48000, 2)
	a.Start()
	a.AddCallback(func(p *Packet) { got = append(got, p) })

	// Audio chunk arrives before video has produced anything: buffered,
	// not dropped and not yet sent downstream.
	if err := a.ReceiveChunk(Frame{Timestamp: 0, Frames: 480}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no packets before pairing, got %d", len(got))
	}

	// Video establishes start_ts; the next audio tick commits the pair
	// and runs startFromBuffer, which drops the buffered chunk (it ends
	// exactly at start_ts) and sends the committed one.
	if err := v.ReceiveFrame(Frame{Timestamp: 10_000_000}); err != nil {
		t.Fatal(err)
	}
	if err := a.ReceiveChunk(Frame{Timestamp: 10_000_000, Frames: 480}); err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatalf("expected the committed audio chunk to be sent once paired")
	}
}
