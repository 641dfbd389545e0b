package source

import (
	"log"

	"github.com/richinsley/mixcore/gpu"
	"github.com/richinsley/mixcore/mediatype"
)

const (
	// MaxAsyncFrames bounds the pending queue; exceeding it triggers a
	// full cache flush and timing reset for that source.
	MaxAsyncFrames = 30
	// MaxUnusedFrameDuration is the tick count after which an unused
	// pooled frame buffer is retired.
	MaxUnusedFrameDuration = 5
)

// VideoFrame is one frame a producer hands to an async-video source.
type VideoFrame struct {
	Data      [mediatype.MaxAVPlanes][]byte
	LineSize  [mediatype.MaxAVPlanes]int
	Width     int
	Height    int
	Timestamp  uint64
	Format     mediatype.VideoFormat
	Colorspace mediatype.Colorspace
	FullRange  bool
	FlipH      bool
	FlipV      bool
}

type videoFrame struct {
	frame VideoFrame
	used  bool
}

// OutputVideo is the public entry point for async-video sources
// (spec.md §6 source_output_video_planes).
func (s *Source) OutputVideo(f VideoFrame) {
	s.asyncMu.Lock()
	defer s.asyncMu.Unlock()

	if len(s.asyncFrames) >= MaxAsyncFrames {
		s.freeAsyncCacheLocked()
		s.lastFrameTS = 0
		log.Printf("source: async frame cache exceeded %d entries, flushing", MaxAsyncFrames)
	}

	vf := s.acquireFrameLocked(f)
	s.asyncFrames = append(s.asyncFrames, vf)
}

// acquireFrameLocked reuses a pooled buffer of matching size if one is
// free, otherwise allocates a new one.
func (s *Source) acquireFrameLocked(f VideoFrame) *videoFrame {
	for _, c := range s.asyncCache {
		if !c.used && c.frame.Width == f.Width && c.frame.Height == f.Height && c.frame.Format == f.Format {
			c.used = true
			c.frame = f
			delete(s.unusedTicks, c)
			return c
		}
	}
	vf := &videoFrame{frame: f, used: true}
	s.asyncCache = append(s.asyncCache, vf)
	return vf
}

func (s *Source) freeAsyncCacheLocked() {
	for _, f := range s.asyncFrames {
		f.used = false
	}
	s.asyncFrames = nil
}

// AsyncTick is called once per compositor tick (spec.md §4.3 step 2):
// pop all but the latest frame, returning each to the pool, and make
// the latest the current async frame.
func (s *Source) AsyncTick(sysTime uint64) {
	s.asyncMu.Lock()
	defer s.asyncMu.Unlock()

	for k := range s.unusedTicks {
		s.unusedTicks[k]++
		if s.unusedTicks[k] >= MaxUnusedFrameDuration {
			s.retireCacheEntryLocked(k)
		}
	}

	if len(s.asyncFrames) == 0 {
		return
	}
	for _, f := range s.asyncFrames[:len(s.asyncFrames)-1] {
		f.used = false
		s.unusedTicks[f] = 0
	}
	latest := s.asyncFrames[len(s.asyncFrames)-1]
	s.asyncFrames = nil

	s.curAsync = latest
	s.lastFrameTS = latest.frame.Timestamp
}

func (s *Source) retireCacheEntryLocked(f *videoFrame) {
	delete(s.unusedTicks, f)
	for i, c := range s.asyncCache {
		if c == f {
			s.asyncCache = append(s.asyncCache[:i], s.asyncCache[i+1:]...)
			return
		}
	}
}

// CurrentFrame returns the frame the compositor should draw this tick
// and whether one is available at all.
func (s *Source) CurrentFrame() (VideoFrame, bool) {
	s.asyncMu.Lock()
	defer s.asyncMu.Unlock()
	if s.curAsync == nil {
		return VideoFrame{}, false
	}
	return s.curAsync.frame, true
}

// QueueExternalTexture records the latest GPU handle a sync-video
// producer supplied (spec.md §6 source_output_video_texture); the
// compositor thread imports it into a real Texture on its next tick
// via TakePendingExternalTexture, matching the async-frame hand-off
// shape (producer enqueues, compositor thread owns the result).
func (s *Source) QueueExternalTexture(handle uint32, w, h int) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.pendingExtHandle = handle
	s.pendingExtW, s.pendingExtH = w, h
	s.pendingExtSet = true
}

// TakePendingExternalTexture returns and clears the queued external
// handle, if any.
func (s *Source) TakePendingExternalTexture() (handle uint32, w, h int, ok bool) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	if !s.pendingExtSet {
		return 0, 0, 0, false
	}
	handle, w, h = s.pendingExtHandle, s.pendingExtW, s.pendingExtH
	s.pendingExtSet = false
	return handle, w, h, true
}

// SetSyncTexture records the imported GPU texture for a sync-video
// source (compositor-thread only, no lock per the concurrency model).
func (s *Source) SetSyncTexture(tex gpu.Texture, w, h int) {
	s.syncTex = tex
	s.syncW, s.syncH = w, h
}

// SyncTextureInfo returns the source's currently imported sync texture
// and the dimensions it was imported at, if any.
func (s *Source) SyncTextureInfo() (gpu.Texture, int, int) {
	return s.syncTex, s.syncW, s.syncH
}

// TextureChanged reports whether a new frame's format/size requires
// rebuilding the compositor-owned texture set for this source.
func (s *Source) TextureChanged(f VideoFrame) bool {
	return f.Format != s.lastVFmt || f.Width != s.lastVW || f.Height != s.lastVH
}

// NoteTextureSize records the geometry the GPU textures were last
// built for (compositor-thread only, no lock needed per the
// concurrency model).
func (s *Source) NoteTextureSize(f VideoFrame) {
	s.lastVFmt, s.lastVW, s.lastVH = f.Format, f.Width, f.Height
}
