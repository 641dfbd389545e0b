// Package audiomix drives the fixed-cadence audio mix tick (spec
// component C2): it collects per-source PCM, detects lagging sources,
// injects compensating buffering, sums mixes, and emits mixed PCM.
package audiomix

import (
	"container/list"
	"log"
	"math"

	"github.com/richinsley/mixcore/source"
)

const (
	audioOutputFrames  = source.AudioOutputFrames
	maxAudioMixes      = source.MaxAudioMixes
	maxBufferingTicks  = source.MaxBufferingTicks
)

// SourceLister supplies the current set of audio sources; the real
// implementation is a registry.Registry snapshot, kept as a function
// here so audiomix has no import-time dependency on the registry's
// type parameters.
type SourceLister func() []*source.Source

// Engine owns the mix tick state: the timestamp window FIFO and the
// buffering-tick counter.
type Engine struct {
	SampleRate int
	Channels   int
	Sources    SourceLister

	bufferedTS          *list.List // of source.TSInfo
	bufferingWaitTicks   int
	totalBufferingTicks  int
	tickPeriodNS         uint64
	nextTickStart        uint64
}

// New builds a mix engine for the given output rate/channel count.
func New(sampleRate, channels int, sources SourceLister) *Engine {
	return &Engine{
		SampleRate:   sampleRate,
		Channels:     channels,
		Sources:      sources,
		bufferedTS:   list.New(),
		tickPeriodNS: uint64(audioOutputFrames) * 1_000_000_000 / uint64(sampleRate),
	}
}

// Tick runs one mix cycle (spec.md §4.2), writing the mixed PCM into
// mixes and returning the window's start timestamp plus whether this
// tick should actually be delivered downstream (false while draining
// injected buffering).
func (e *Engine) Tick(mixes *source.MixOutput) (outTS uint64, deliver bool) {
	ts := source.TSInfo{Start: e.nextTickStart, End: e.nextTickStart + e.tickPeriodNS}
	e.nextTickStart = ts.End
	e.bufferedTS.PushBack(ts)

	front := e.bufferedTS.Front()
	ts = front.Value.(source.TSInfo)
	minTS := ts.Start

	srcs := e.Sources()

	for _, src := range srcs {
		src.AudioRender(0xFFFFFFFF, e.Channels, e.SampleRate)
	}

	minTS = e.calcMinTS(srcs, minTS)

	if minTS < ts.Start {
		e.addAudioBuffering(ts.Start, minTS, front)
		front = e.bufferedTS.Front()
		ts = front.Value.(source.TSInfo)
	}

	if e.bufferingWaitTicks == 0 {
		for _, src := range srcs {
			if src.AudioPending() {
				continue
			}
			src.MixAudio(mixes, e.Channels, e.SampleRate, ts)
		}
	}

	for _, src := range srcs {
		src.DiscardAudio(e.totalBufferingTicks, e.Channels, e.SampleRate, ts)
	}

	e.bufferedTS.Remove(front)
	outTS = ts.Start

	if e.bufferingWaitTicks > 0 {
		e.bufferingWaitTicks--
		return outTS, false
	}
	return outTS, true
}

// calcMinTS finds the minimum audio_ts across non-pending sources,
// then asks each source whether it can actually contribute at that
// timestamp (mark_invalid_sources, via Source.AudioBufferInsufficient);
// if any source flips to pending as a result, it requests one more
// pass — mirrored here as a loop that converges once no source
// changes state.
func (e *Engine) calcMinTS(srcs []*source.Source, fallback uint64) uint64 {
	for {
		min := uint64(math.MaxUint64)
		any := false
		for _, src := range srcs {
			if src.AudioPending() {
				continue
			}
			if ts := src.AudioTS(); ts != 0 {
				any = true
				if ts < min {
					min = ts
				}
			}
		}
		if !any {
			return fallback
		}

		changed := false
		for _, src := range srcs {
			if src.AudioPending() {
				continue
			}
			if src.AudioBufferInsufficient(e.SampleRate, min) {
				// can't actually cover min_ts; flip to pending and
				// request another pass (mark_invalid_sources).
				src.MarkAudioPending()
				changed = true
			}
		}
		if !changed {
			return min
		}
	}
}

// addAudioBuffering extends the window backwards by injecting
// synthetic ticks at the front of the FIFO, capped at
// MaxBufferingTicks total.
func (e *Engine) addAudioBuffering(windowStart, minTS uint64, front *list.Element) {
	deficitNS := windowStart - minTS
	ticks := int(math.Ceil(float64(deficitNS) / float64(e.tickPeriodNS)))
	if e.totalBufferingTicks+ticks > maxBufferingTicks {
		ticks = maxBufferingTicks - e.totalBufferingTicks
	}
	if ticks <= 0 {
		return
	}

	cur := front.Value.(source.TSInfo)
	for i := 0; i < ticks; i++ {
		shifted := source.TSInfo{Start: cur.Start - e.tickPeriodNS, End: cur.Start}
		e.bufferedTS.InsertBefore(shifted, front)
		cur = shifted
	}
	e.totalBufferingTicks += ticks
	e.bufferingWaitTicks += ticks

	log.Printf("audiomix: adding %d ms of audio buffering (total %d ticks)",
		ticks*int(e.tickPeriodNS/1_000_000), e.totalBufferingTicks)
	if e.totalBufferingTicks >= maxBufferingTicks {
		log.Printf("audiomix: Max audio buffering reached!")
	}
}
