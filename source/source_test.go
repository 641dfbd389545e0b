package source

import "testing"

func stereoFrame(frames int, ts uint64) AudioFrame {
	l := make([]float32, frames)
	r := make([]float32, frames)
	for i := range l {
		l[i] = float32(i)
		r[i] = -float32(i)
	}
	return AudioFrame{
		Data:       [][]float32{l, r},
		Frames:     uint32(frames),
		Format:     0, // placeholder; F32 planar is assumed internal format for tests
		SampleRate: 48000,
		Timestamp:  ts,
	}
}

func TestDirectTimestampDetection(t *testing.T) {
	orig := now
	defer func() { now = orig }()
	now = func() uint64 { return 1_000_000_000_000 }

	s := New(KindAudio, 48000, 2)
	s.lastFormat = 0
	s.lastSpeakers = 0
	s.lastSampleRate = 48000
	s.resampler = nil // force pass-through path

	f := stereoFrame(1024, now())
	s.outputAudioDataInternal(f.Data, f.Frames, f.Timestamp, f.SampleRate)

	if !s.timingSet {
		t.Fatalf("expected timingSet after first frame")
	}
	if s.timingAdjust != 0 {
		t.Fatalf("expected timingAdjust == 0 for a direct-timestamp frame, got %d", s.timingAdjust)
	}
}

func TestBufferOverflowDropsSilently(t *testing.T) {
	orig := now
	defer func() { now = orig }()
	base := uint64(1_000_000_000_000)
	now = func() uint64 { return base }

	s := New(KindAudio, 48000, 2)

	ts := base
	for i := 0; i < 2000; i++ {
		f := stereoFrame(1024, ts)
		s.outputAudioDataInternal(f.Data, f.Frames, f.Timestamp, f.SampleRate)
		ts += framesToNS(1024, 48000)
	}

	if s.audioInputBuf[0].size > MaxBufSize {
		t.Fatalf("buffer grew past MaxBufSize: %d > %d", s.audioInputBuf[0].size, MaxBufSize)
	}
}

func TestTSDiffIsSymmetric(t *testing.T) {
	if tsDiff(10, 3) != tsDiff(3, 10) {
		t.Fatalf("tsDiff should be symmetric")
	}
	if tsDiff(10, 3) != 7 {
		t.Fatalf("tsDiff(10,3) = %d, want 7", tsDiff(10, 3))
	}
}
