// Package resample defines the external audio-resampler contract
// named in the embeddable surface ("a third-party audio resampler")
// and a default implementation backed by go-audio-resampler.
package resample

import "github.com/richinsley/mixcore/mediatype"

// Info describes one side of a resample conversion.
type Info struct {
	SampleRate int
	Format     mediatype.AudioFormat
	Speakers   mediatype.SpeakerLayout
}

// Resampler converts audio frames between two Info triples. A nil
// Resampler means pass-through (same format as the consumer already
// expects) — callers check for nil rather than calling a no-op
// implementation, matching the "null resampler" case in the source
// timing contract.
type Resampler interface {
	// Resample converts in (one []float32 slice per input channel) and
	// returns framesOut converted frames in out (reused across calls
	// where possible) plus the byte offset into the resampler's
	// internal carry buffer the output started at.
	Resample(in [][]float32, framesIn int) (out [][]float32, framesOut int, offsetOut int, err error)
	Close() error
}

// Create builds a Resampler for dst<-src, or returns (nil, nil) if the
// two sides already match (pass-through). Errors here are the
// "resampler creation failure" the source timing contract requires
// callers to turn into audio_failed=true.
func Create(dst, src Info) (Resampler, error) {
	if dst.SampleRate == src.SampleRate && dst.Format == src.Format && dst.Speakers == src.Speakers {
		return nil, nil
	}
	return newTPhakalaResampler(dst, src)
}
