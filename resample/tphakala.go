package resample

import (
	"fmt"

	goresample "github.com/tphakala/go-audio-resampler"
)

// tphakalaResampler wraps go-audio-resampler, the concrete collaborator
// for the external resampler contract. The library resamples one
// channel at a time, so per-channel resamplers are kept in a slice
// indexed by channel. Only the sample rate is converted: each output
// channel comes from the input channel of the same index, so the
// speaker layout and sample format of the input pass through unchanged.
type tphakalaResampler struct {
	perChannel []*goresample.Resampler
	channels   int
	scratch    [][]float32
}

func newTPhakalaResampler(dst, src Info) (Resampler, error) {
	channels := src.Speakers.Channels()
	if channels == 0 {
		channels = 1
	}

	r := &tphakalaResampler{
		channels: channels,
		scratch:  make([][]float32, channels),
	}
	for ch := 0; ch < channels; ch++ {
		rs, err := goresample.New(src.SampleRate, dst.SampleRate, goresample.QualityMedium)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("resample: creating resampler for channel %d: %w", ch, err)
		}
		r.perChannel = append(r.perChannel, rs)
	}
	return r, nil
}

func (r *tphakalaResampler) Resample(in [][]float32, framesIn int) ([][]float32, int, int, error) {
	framesOut := 0
	for ch := 0; ch < r.channels && ch < len(in); ch++ {
		out, err := r.perChannel[ch].Process(in[ch][:framesIn])
		if err != nil {
			return nil, 0, 0, fmt.Errorf("resample: channel %d: %w", ch, err)
		}
		r.scratch[ch] = out
		framesOut = len(out)
	}
	return r.scratch, framesOut, 0, nil
}

func (r *tphakalaResampler) Close() error {
	for _, rs := range r.perChannel {
		if rs != nil {
			rs.Close()
		}
	}
	return nil
}
