package audioout

import (
	"math"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

// Meter is an optional audio-output subscriber that computes a
// spectrum and peak level per delivered chunk, for a VU/level display.
// Adapted from the teacher's FFT-driven shader input (inputs/mic.go),
// repurposed here from a shader texture source into an output-side
// diagnostic.
type Meter struct {
	mu        sync.Mutex
	spectrum  []float64
	peak      float32
	fftSize   int
}

// NewMeter builds a meter that bins magnitude into fftSize/2 buckets.
func NewMeter(fftSize int) *Meter {
	return &Meter{fftSize: fftSize, spectrum: make([]float64, fftSize/2)}
}

// Callback is passed directly to Output.Subscribe.
func (m *Meter) Callback(c MixChunk) {
	if len(c.Data) == 0 {
		return
	}
	mono := make([]float64, m.fftSize)
	n := c.Frames
	if n > m.fftSize {
		n = m.fftSize
	}
	var peak float32
	for i := 0; i < n; i++ {
		var sum float32
		for _, ch := range c.Data {
			if i < len(ch) {
				sum += ch[i]
			}
		}
		v := sum / float32(len(c.Data))
		mono[i] = float64(v)
		if av := float32(math.Abs(float64(v))); av > peak {
			peak = av
		}
	}

	spectrum := fft.FFTReal(mono)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.peak = peak
	for i := range m.spectrum {
		if i < len(spectrum) {
			m.spectrum[i] = cmplxAbs(spectrum[i])
		}
	}
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// Peak returns the most recent chunk's peak absolute sample value.
func (m *Meter) Peak() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Spectrum returns a copy of the most recent magnitude spectrum.
func (m *Meter) Spectrum() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.spectrum))
	copy(out, m.spectrum)
	return out
}
