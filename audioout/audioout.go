// Package audioout implements the audio output's mix-indexed
// subscriber fan-out, including per-subscriber resampling (spec
// component C4.2).
package audioout

import (
	"sync"

	"github.com/richinsley/mixcore/resample"
	"github.com/richinsley/mixcore/source"
)

// MixChunk is one tick's worth of mixed PCM for one mix index.
type MixChunk struct {
	Data   [][]float32 // per channel
	Frames int
	TS     uint64
}

type subscription struct {
	mixIdx   int
	param    any
	convert  resample.Info
	resamp   resample.Resampler
	callback func(MixChunk)
}

// Output owns nothing about the mix itself (that's audiomix.Engine);
// it only fans a finished tick out to subscribers per mix index.
// subscriptions is mutated by Subscribe/Unsubscribe from host threads
// while Deliver iterates it on the mix tick goroutine, so mu guards it
// the same way videoout.Cache guards its own subscriber list — this is
// one of the locks spec.md §5's lock-order invariant names.
type Output struct {
	mu            sync.Mutex
	native        resample.Info
	subscriptions []*subscription
}

// NewOutput builds an audio output for the mixer's native format.
func NewOutput(native resample.Info) *Output {
	return &Output{native: native}
}

// Subscribe registers a (mix_idx, convert_info, callback, param)
// quadruple; a duplicate (mixIdx, param) pair is rejected rather than
// silently layered, matching the original's connect-returns-false
// behavior (param is the caller's own identity token, since func
// values in Go aren't comparable).
func (o *Output) Subscribe(mixIdx int, convert resample.Info, cb func(MixChunk), param any) (*subscription, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.subscriptions {
		if s.mixIdx == mixIdx && s.param == param {
			return nil, false
		}
	}
	r, _ := resample.Create(convert, o.native)
	sub := &subscription{mixIdx: mixIdx, param: param, convert: convert, resamp: r, callback: cb}
	o.subscriptions = append(o.subscriptions, sub)
	return sub, true
}

// Unsubscribe removes a previously registered subscription.
func (o *Output) Unsubscribe(sub *subscription) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subscriptions {
		if s == sub {
			if s.resamp != nil {
				s.resamp.Close()
			}
			o.subscriptions = append(o.subscriptions[:i], o.subscriptions[i+1:]...)
			return
		}
	}
}

// Deliver is called once per tick by the owner of the mix engine
// (spec.md §4.4: "clamps mixed PCM to [-1,1] before delivery"),
// fanning out mixes[mixIdx] to every subscriber on that index.
func (o *Output) Deliver(mixes *source.MixOutput, channels int, frames int, ts uint64) {
	o.mu.Lock()
	subs := append([]*subscription(nil), o.subscriptions...)
	o.mu.Unlock()

	for _, sub := range subs {
		data := make([][]float32, channels)
		for ch := 0; ch < channels; ch++ {
			clamped := make([]float32, frames)
			for i := 0; i < frames; i++ {
				clamped[i] = clamp(mixes[sub.mixIdx][ch][i])
			}
			data[ch] = clamped
		}

		out, framesOut := data, frames
		if sub.resamp != nil {
			if converted, n, _, err := sub.resamp.Resample(data, frames); err == nil {
				out, framesOut = converted, n
			}
		}
		sub.callback(MixChunk{Data: out, Frames: framesOut, TS: ts})
	}
}

func clamp(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
