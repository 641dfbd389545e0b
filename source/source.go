// Package source implements the per-source audio timing/resampling
// state machine and the async video frame cache (spec component C1).
package source

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/richinsley/mixcore/gpu"
	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/resample"
)

const (
	MaxAudioMixes     = 6
	MaxAudioChannels  = mediatype.MaxAudioChannels
	AudioOutputFrames = 1024
	// MaxBufSize bounds per-channel buffered bytes; overflow silently
	// drops the incoming chunk rather than growing unbounded.
	MaxBufSize = 1000 * AudioOutputFrames * 4
)

// AudioFrame is one chunk of audio a producer hands to a source.
type AudioFrame struct {
	Data       [][]float32 // per channel, already deinterleaved
	Frames     uint32
	Format     mediatype.AudioFormat
	Speakers   mediatype.SpeakerLayout
	SampleRate int
	Timestamp  uint64 // ns
}

// Kind is the capability a source was created with.
type Kind int

const (
	KindAudio Kind = iota
	KindAsyncVideo
	KindSyncVideo
	KindAudioVideo
)

// AspectMode selects how a source is fit into its render box.
type AspectMode int

const (
	AspectIgnore AspectMode = iota
	AspectKeep
	AspectKeepByExpanding
)

// RenderBox is an optional target rect plus fit policy.
type RenderBox struct {
	Enabled bool
	X, Y    int
	W, H    int
	Mode    AspectMode
}

// Transform is a source's placement state.
type Transform struct {
	PosX, PosY     float32
	ScaleX, ScaleY float32
	Rotation       float32
	FlipH, FlipV   bool
	Box            RenderBox
}

// now returns the wall clock in ns since epoch. Kept as a var so tests
// can substitute a deterministic clock.
var now = func() uint64 { return uint64(time.Now().UnixNano()) }

// Source is the per-source timing/buffering state machine (C1).
type Source struct {
	Kind Kind

	mixSampleRate int
	mixChannels   int

	// audio timing
	timingSet         bool
	timingAdjust      int64 // signed ns adjustment
	resampleOffset    uint64
	lastAudioTS       uint64
	nextAudioTSMin    uint64
	nextAudioSysTSMin uint64
	syncOffset        int64
	lastSyncOffset    int64
	audioTS           uint64 // 0 means empty
	audioFailed       bool
	audioPendingFlag  bool
	pendingStop       bool
	userMuted         bool
	muted             bool
	userVolume        float32
	volume            float32
	audioMixers       uint32 // bitmask, default 0xFF

	// last seen triple, to detect resampler resets
	lastFormat     mediatype.AudioFormat
	lastSpeakers   mediatype.SpeakerLayout
	lastSampleRate int

	resampler resample.Resampler

	audioBufMu     sync.Mutex
	audioInputBuf  [MaxAudioChannels]*chanBuffer
	audioOutputBuf [MaxAudioMixes][MaxAudioChannels][]float32

	prevTickBufSize int
	stopTickSeen    bool

	// async video cache (C1 video half)
	asyncMu      sync.Mutex
	asyncFrames  []*videoFrame
	asyncCache   []*videoFrame
	curAsync     *videoFrame
	lastFrameTS  uint64
	unusedTicks  map[*videoFrame]int

	// sync video / GPU state (mutated only on compositor thread)
	Textures  [mediatype.MaxAVPlanes]gpu.Texture
	ConvTex   gpu.Texture
	lastVFmt  mediatype.VideoFormat
	lastVW    int
	lastVH    int

	// sync-video external texture hand-off: producer threads queue the
	// latest externally supplied GPU handle under syncMu; the
	// compositor thread takes it once per tick and owns syncTex/syncW/
	// syncH from then on, same hand-off shape as the async frame queue.
	syncMu           sync.Mutex
	pendingExtHandle uint32
	pendingExtW      int
	pendingExtH      int
	pendingExtSet    bool

	syncTex gpu.Texture
	syncW   int
	syncH   int

	Transform Transform
}

// New constructs a Source bound to the mixer's native audio format.
func New(kind Kind, mixSampleRate, mixChannels int) *Source {
	s := &Source{
		Kind:          kind,
		mixSampleRate: mixSampleRate,
		mixChannels:   mixChannels,
		audioMixers:   0xFF,
		volume:        1.0,
		userVolume:    1.0,
		unusedTicks:   make(map[*videoFrame]int),
		Transform:     Transform{ScaleX: 1, ScaleY: 1},
	}
	for ch := 0; ch < MaxAudioChannels; ch++ {
		s.audioInputBuf[ch] = newChanBuffer()
	}
	for m := 0; m < MaxAudioMixes; m++ {
		for ch := 0; ch < MaxAudioChannels; ch++ {
			s.audioOutputBuf[m][ch] = make([]float32, AudioOutputFrames)
		}
	}
	return s
}

// AudioPending reports whether the most recent mix tick found this
// source unable to contribute (used by the mix engine).
func (s *Source) AudioPending() bool { return s.audioPendingFlag }

// AudioTS returns the source's current buffer base timestamp.
func (s *Source) AudioTS() uint64 { return s.audioTS }

// resetResampler rebuilds the resampler whenever the incoming triple
// changes, per the resampler-lifecycle contract.
func (s *Source) resetResampler(f AudioFrame) error {
	if f.Format == s.lastFormat && f.Speakers == s.lastSpeakers && f.SampleRate == s.lastSampleRate && s.resampler != nil {
		return nil
	}
	if s.resampler != nil {
		s.resampler.Close()
		s.resampler = nil
	}
	s.lastFormat, s.lastSpeakers, s.lastSampleRate = f.Format, f.Speakers, f.SampleRate

	r, err := resample.Create(
		resample.Info{SampleRate: s.mixSampleRate, Format: mediatype.AudioFormatF32Planar, Speakers: mediatype.SpeakersStereo},
		resample.Info{SampleRate: f.SampleRate, Format: f.Format, Speakers: f.Speakers},
	)
	if err != nil {
		s.audioFailed = true
		log.Printf("source: creation of resampler failed: %v", err)
		return err
	}
	s.resampler = r
	s.audioFailed = false
	return nil
}

// OutputAudio is the public entry point a producer calls with a new
// chunk of audio (spec.md §6 source_output_audio).
func (s *Source) OutputAudio(f AudioFrame) error {
	if s.audioFailed && f.Format == s.lastFormat && f.Speakers == s.lastSpeakers && f.SampleRate == s.lastSampleRate {
		return nil
	}
	if err := s.resetResampler(f); err != nil {
		return nil // discarded until the triple changes again
	}

	data := f.Data
	frames := f.Frames
	if s.resampler != nil {
		out, framesOut, offset, err := s.resampler.Resample(f.Data, int(f.Frames))
		if err != nil {
			return fmt.Errorf("source: resample: %w", err)
		}
		data, frames = out, uint32(framesOut)
		s.resampleOffset = uint64(offset)
	}

	s.outputAudioDataInternal(data, frames, f.Timestamp, f.SampleRate)
	return nil
}

// outputAudioDataInternal implements spec.md §4.1 steps 2-8.
func (s *Source) outputAudioDataInternal(data [][]float32, frames uint32, ts uint64, sampleRate int) {
	osNow := now()

	directTS := tsDiff(ts, osNow) < MaxTSVariance
	if directTS {
		s.timingAdjust = 0
		s.timingSet = true
	}

	var diff uint64
	if !s.timingSet {
		s.timingAdjust = int64(osNow) - int64(ts)
		s.timingSet = true
	} else if s.nextAudioTSMin != 0 {
		diff = tsDiff(s.nextAudioTSMin, ts)
		if diff > MaxTSVariance && !directTS {
			log.Printf("source: timestamp jumped by %d ns (expected %d, got %d)", diff, s.nextAudioTSMin, ts)
			s.timingAdjust = int64(osNow) - int64(ts)
		}
		if diff < TSSmoothingThreshold {
			ts = s.nextAudioTSMin
		}
	}

	s.lastAudioTS = ts
	s.nextAudioTSMin = ts + framesToNS(frames, sampleRate)

	adjustedTS := int64(ts) + s.timingAdjust + s.syncOffset - int64(s.resampleOffset)
	s.nextAudioSysTSMin = uint64(int64(s.nextAudioTSMin) + s.timingAdjust)

	s.audioBufMu.Lock()
	defer s.audioBufMu.Unlock()

	pushBack := uint64(adjustedTS) == s.nextAudioSysTSMin || diff < TSSmoothingThreshold
	if s.lastSyncOffset != 0 && s.lastSyncOffset != s.syncOffset {
		pushBack = false
	}
	s.lastSyncOffset = s.syncOffset

	channels := len(data)
	if channels > MaxAudioChannels {
		channels = MaxAudioChannels
	}

	if pushBack && s.audioTS != 0 {
		s.pushBackAudio(data, channels, frames)
		return
	}
	s.placeAudio(data, channels, frames, uint64(adjustedTS), sampleRate)
}

func (s *Source) pushBackAudio(data [][]float32, channels int, frames uint32) {
	bytesIn := int(frames) * 4
	for ch := 0; ch < channels; ch++ {
		buf := s.audioInputBuf[ch]
		if buf.size+bytesIn > MaxBufSize {
			continue // silent drop; do not reset timing
		}
		buf.pushBack(data[ch][:frames])
	}
}

func (s *Source) placeAudio(data [][]float32, channels int, frames uint32, ts uint64, sampleRate int) {
	if s.audioTS == 0 || ts < s.audioTS {
		s.resetAudioBase(ts)
	}
	offsetSamples := int((ts - s.audioTS) * uint64(sampleRate) / 1_000_000_000)
	for ch := 0; ch < channels; ch++ {
		buf := s.audioInputBuf[ch]
		endSamples := offsetSamples + int(frames)
		if endSamples*4 > MaxBufSize {
			continue
		}
		buf.placeAt(offsetSamples, data[ch][:frames])
		buf.truncateTo(endSamples)
	}
}

func (s *Source) resetAudioBase(ts uint64) {
	for ch := 0; ch < MaxAudioChannels; ch++ {
		s.audioInputBuf[ch].clear()
	}
	s.audioTS = ts
}

// SetVolume sets the linear gain applied at mix time.
func (s *Source) SetVolume(v float32) { s.volume = v }

// SetMuted mutes/unmutes the source's contribution to every mix.
func (s *Source) SetMuted(m bool) { s.userMuted = m }

// SetSyncOffset adjusts this source's audio relative to the timeline.
func (s *Source) SetSyncOffset(ns int64) { s.syncOffset = ns }

// SetAudioMixers sets the bitmask of mix indices this source feeds.
func (s *Source) SetAudioMixers(mask uint32) { s.audioMixers = mask }
