// Package mixcore is the embeddable live A/V compositing/mixing core
// (spec.md §6): register sources, start audio/video, subscribe to
// mixed/composited output, and pair encoders — all through the Core
// type below. Constants mirror the ones spec.md names explicitly.
package mixcore

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/richinsley/mixcore/audiomix"
	"github.com/richinsley/mixcore/audioout"
	"github.com/richinsley/mixcore/compositor"
	"github.com/richinsley/mixcore/encoder"
	"github.com/richinsley/mixcore/gpu"
	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/registry"
	"github.com/richinsley/mixcore/resample"
	"github.com/richinsley/mixcore/source"
	"github.com/richinsley/mixcore/videoout"
	"github.com/richinsley/mixcore/vscale"
)

// Constants named explicitly in spec.md §6.
const (
	AudioOutputFrames = source.AudioOutputFrames
	MaxAudioMixes     = source.MaxAudioMixes
	MaxAudioChannels  = source.MaxAudioChannels
	MaxAVPlanes       = mediatype.MaxAVPlanes
	MaxBufferingTicks = source.MaxBufferingTicks
	MaxAsyncFrames    = source.MaxAsyncFrames
	VideoCacheSize    = videoout.CacheSize
	MaxBufSizePerChan = source.MaxBufSize
)

// Core wires the registry, mixer, compositor, and output/encoder fan-
// out into the embeddable surface. One Core instance per embedding,
// per the registry's "scope it to a core instance" redesign note.
type Core struct {
	mu  sync.Mutex
	reg *registry.Registry[*source.Source]

	gpuCtx gpu.Context

	sampleRate int
	speakers   mediatype.SpeakerLayout
	mixEngine  *audiomix.Engine
	audioOut   *audioout.Output
	audioStop  chan struct{}
	audioDone  chan struct{}

	width, height, fps int
	videoOut           *videoout.Cache
	comp               *compositor.Compositor

	nextOwner uintptr
}

// New constructs an idle Core bound to a GPU context (the single
// go-gl-backed gpu.Context per process in the common case, or a test
// double).
func New(gpuCtx gpu.Context) *Core {
	return &Core{reg: registry.New[*source.Source](), gpuCtx: gpuCtx}
}

// StartAudio begins the fixed-cadence mix tick at sampleRate (spec.md
// §6 start_audio). Fails fast on an invalid rate rather than
// partially initializing (spec.md §7's Invalid-parameter policy).
func (c *Core) StartAudio(sampleRate int, speakers mediatype.SpeakerLayout) error {
	if sampleRate <= 0 {
		return fmt.Errorf("mixcore: invalid sample rate %d", sampleRate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mixEngine != nil {
		return fmt.Errorf("mixcore: audio already started")
	}

	c.sampleRate = sampleRate
	c.speakers = speakers
	c.mixEngine = audiomix.New(sampleRate, speakers.Channels(), func() []*source.Source {
		return c.reg.Snapshot(registry.TagAudio, registry.TagAudioVideo)
	})
	c.audioOut = audioout.NewOutput(resample.Info{SampleRate: sampleRate, Format: mediatype.AudioFormatF32Planar, Speakers: speakers})
	c.audioStop = make(chan struct{})
	c.audioDone = make(chan struct{})

	tickPeriod := time.Duration(AudioOutputFrames) * time.Second / time.Duration(sampleRate)
	go c.audioLoop(tickPeriod)
	return nil
}

func (c *Core) audioLoop(period time.Duration) {
	defer close(c.audioDone)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var mixes source.MixOutput
	for mix := range mixes {
		for ch := range mixes[mix] {
			mixes[mix][ch] = make([]float32, AudioOutputFrames)
		}
	}
	for {
		select {
		case <-c.audioStop:
			return
		case <-ticker.C:
			for mix := range mixes {
				for ch := range mixes[mix] {
					clear(mixes[mix][ch])
				}
			}
			ts, deliver := c.mixEngine.Tick(&mixes)
			if !deliver {
				continue
			}
			c.audioOut.Deliver(&mixes, c.speakers.Channels(), AudioOutputFrames, ts)
		}
	}
}

// StopAudio halts the mix tick loop.
func (c *Core) StopAudio() {
	c.mu.Lock()
	if c.mixEngine == nil {
		c.mu.Unlock()
		return
	}
	stop, done := c.audioStop, c.audioDone
	c.mixEngine = nil
	c.audioOut = nil
	c.mu.Unlock()

	close(stop)
	<-done
}

// StartVideo opens the video output cache and starts the compositor's
// tick loop at fpsNum/fpsDen (spec.md §6 start_video).
func (c *Core) StartVideo(width, height, fpsNum, fpsDen int) error {
	if width <= 0 || height <= 0 || fpsNum <= 0 || fpsDen <= 0 {
		return fmt.Errorf("mixcore: invalid video params %dx%d @ %d/%d", width, height, fpsNum, fpsDen)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.comp != nil {
		return fmt.Errorf("mixcore: video already started")
	}

	fps := fpsNum / fpsDen
	frameTime := uint64(time.Second) * uint64(fpsDen) / uint64(fpsNum)
	native := vscale.Info{Format: mediatype.VideoFormatRGBA, Width: width, Height: height}
	c.videoOut = videoout.Open(native, frameTime)

	lister := func() []*source.Source {
		return c.reg.Snapshot(registry.TagSyncVideo, registry.TagAsyncVideo, registry.TagAudioVideo)
	}
	comp, err := compositor.New(c.gpuCtx, width, height, fps, lister, c.videoOut)
	if err != nil {
		c.videoOut.Close()
		c.videoOut = nil
		return fmt.Errorf("mixcore: start video: %w", err)
	}
	c.width, c.height, c.fps = width, height, fps
	c.comp = comp
	go comp.Run()
	return nil
}

// StopVideo stops the compositor loop and closes the output cache.
func (c *Core) StopVideo() {
	c.mu.Lock()
	comp, out := c.comp, c.videoOut
	c.comp, c.videoOut = nil, nil
	c.mu.Unlock()

	if comp != nil {
		comp.Stop()
	}
	if out != nil {
		out.Close()
	}
}

// CreateSource registers a new source under owner (spec.md §6
// create_source), returning a handle the caller uses for every
// subsequent per-source call.
func (c *Core) CreateSource(owner uintptr, tag registry.SourceTag) (registry.Handle, *source.Source) {
	c.mu.Lock()
	sampleRate, channels := c.sampleRate, 0
	if c.speakers != mediatype.SpeakersUnknown {
		channels = c.speakers.Channels()
	}
	c.mu.Unlock()

	var kind source.Kind
	switch tag {
	case registry.TagAudio:
		kind = source.KindAudio
	case registry.TagAsyncVideo:
		kind = source.KindAsyncVideo
	case registry.TagSyncVideo:
		kind = source.KindSyncVideo
	default:
		kind = source.KindAudioVideo
	}

	src := source.New(kind, sampleRate, channels)
	h := c.reg.Register(owner, tag, src)
	return h, src
}

// DestroySource unregisters a source (spec.md §6 destroy_source).
func (c *Core) DestroySource(h registry.Handle) {
	c.reg.Unregister(h)
}

// LookupSource resolves a handle back to its source, the primitive
// every source_output_*/source_set_transform call goes through.
func (c *Core) LookupSource(h registry.Handle) (*source.Source, bool) {
	entry, ok := c.reg.Lookup(h)
	if !ok {
		return nil, false
	}
	return entry.Source, true
}

// SourceOutputVideoTexture hands a sync-video source a GPU texture
// handle to render directly (spec.md §6 source_output_video_texture).
// Only sync/combined audio-video sources may use this path; and since
// the host's GPU context is the authority on whether a foreign handle
// can actually be imported, an unsupported backend fails synchronously
// here rather than silently dropping the frame on the compositor
// thread (spec.md §7's "GPU texture-share unsupported" policy).
func (c *Core) SourceOutputVideoTexture(h registry.Handle, handle uint32, w, h2 int) error {
	entry, ok := c.reg.Lookup(h)
	if !ok {
		return fmt.Errorf("mixcore: unknown source handle")
	}
	src := entry.Source
	if src.Kind != source.KindSyncVideo && src.Kind != source.KindAudioVideo {
		return fmt.Errorf("mixcore: source_output_video_texture requires a sync-video source")
	}
	if c.gpuCtx == nil || !c.gpuCtx.SupportsExternalTextures() {
		return fmt.Errorf("mixcore: GPU texture sharing unavailable, fall back to pixel upload")
	}
	src.QueueExternalTexture(handle, w, h2)
	return nil
}

// AudioSubscribe registers a mixed-audio consumer (spec.md §6
// audio_subscribe).
func (c *Core) AudioSubscribe(mixIdx int, convert resample.Info, cb func(audioout.MixChunk), param any) (bool, error) {
	c.mu.Lock()
	out := c.audioOut
	c.mu.Unlock()
	if out == nil {
		return false, fmt.Errorf("mixcore: audio not started")
	}
	_, ok := out.Subscribe(mixIdx, convert, cb, param)
	return ok, nil
}

// VideoSubscribe registers a composited-video consumer (spec.md §6
// video_subscribe).
func (c *Core) VideoSubscribe(scaleInfo vscale.Info, kind vscale.ScaleType, cb func(videoout.Frame)) (*videoout.Subscriber, error) {
	c.mu.Lock()
	out := c.videoOut
	c.mu.Unlock()
	if out == nil {
		return nil, fmt.Errorf("mixcore: video not started")
	}
	return out.Subscribe(scaleInfo, kind, cb)
}

// VideoUnsubscribe removes a previously registered video consumer.
func (c *Core) VideoUnsubscribe(sub *videoout.Subscriber) {
	c.mu.Lock()
	out := c.videoOut
	c.mu.Unlock()
	if out != nil {
		out.Unsubscribe(sub)
	}
}

// EncoderCreateVideo wraps codec in a paired-capable VideoEncoder
// (spec.md §6 encoder_create_video).
func (c *Core) EncoderCreateVideo(codec encoder.Codec) *encoder.VideoEncoder {
	return encoder.NewVideoEncoder(codec)
}

// EncoderCreateAudio wraps codec in an AudioEncoder paired with video
// (spec.md §6 encoder_create_audio).
func (c *Core) EncoderCreateAudio(codec encoder.Codec, video *encoder.VideoEncoder, sampleRate, channels int) *encoder.AudioEncoder {
	return encoder.NewAudioEncoder(codec, video, sampleRate, channels)
}

// NextOwnerID hands out a process-unique owner token for hosts that
// have no natural pointer identity of their own to use as the
// registry's owner key.
func (c *Core) NextOwnerID() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextOwner++
	return c.nextOwner
}

// Shutdown stops audio and video and releases the GPU context.
func (c *Core) Shutdown() {
	c.StopAudio()
	c.StopVideo()
	if c.gpuCtx != nil {
		if err := c.gpuCtx.MakeCurrent(); err == nil {
			c.gpuCtx.DoneCurrent()
		} else {
			log.Printf("mixcore: shutdown make-current: %v", err)
		}
	}
}
