package audiomix

import (
	"testing"

	"github.com/richinsley/mixcore/source"
)

func newMixOutput() *source.MixOutput {
	var m source.MixOutput
	for mix := range m {
		for ch := range m[mix] {
			m[mix][ch] = make([]float32, source.AudioOutputFrames)
		}
	}
	return &m
}

func TestSilentSourceTenTicksMonotonicAndZero(t *testing.T) {
	silent := source.New(source.KindAudio, 48000, 2)
	e := New(48000, 2, func() []*source.Source { return []*source.Source{silent} })

	var lastTS uint64
	for i := 0; i < 10; i++ {
		mixes := newMixOutput()
		outTS, deliver := e.Tick(mixes)
		if !deliver {
			t.Fatalf("tick %d: expected delivery with only a silent source registered", i)
		}
		if i > 0 && outTS <= lastTS {
			t.Fatalf("tick %d: out_ts %d not strictly increasing from %d", i, outTS, lastTS)
		}
		lastTS = outTS
		for ch := 0; ch < 2; ch++ {
			for _, v := range mixes[0][ch] {
				if v != 0 {
					t.Fatalf("tick %d: expected silence, got %f", i, v)
				}
			}
		}
	}

	if e.totalBufferingTicks != 0 {
		t.Fatalf("total_buffering_ticks = %d, want 0", e.totalBufferingTicks)
	}
}

func TestBufferingNeverExceedsMax(t *testing.T) {
	e := New(48000, 2, func() []*source.Source { return nil })
	start := 100 * e.tickPeriodNS
	for i := 0; i < 10; i++ {
		front := e.bufferedTS.PushBack(source.TSInfo{Start: start, End: start + e.tickPeriodNS})
		e.addAudioBuffering(start, 0, front)
	}
	if e.totalBufferingTicks > maxBufferingTicks {
		t.Fatalf("total_buffering_ticks = %d, want <= %d", e.totalBufferingTicks, maxBufferingTicks)
	}
}
