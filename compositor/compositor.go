// Package compositor implements the GPU-based frame-paced video
// compositor (spec component C3): a fixed-rate tick loop that advances
// every registered video source's async cache, uploads/converts
// changed frames on the GPU, draws each into a shared render target
// per its transform and render-box fit policy, then downloads the
// composited result for fan-out through videoout.Cache.
package compositor

import (
	"fmt"
	"log"
	"time"

	"github.com/richinsley/mixcore/gpu"
	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/source"
	"github.com/richinsley/mixcore/videoout"
	"github.com/richinsley/mixcore/vscale"
)

// GPUFrame is the zero-copy encode hand-off (spec.md §4.3 step 5 /
// §4.8's GPU encode fast-path): the render target texture itself,
// never downloaded to CPU memory, for encoders that opted into
// i_gpu_encode_available via RegisterGPUEncoder.
type GPUFrame struct {
	Texture   gpu.Texture
	Width     int
	Height    int
	Timestamp uint64
}

// SourceLister returns the sources the compositor should draw this
// tick, front-to-back (later entries drawn on top).
type SourceLister func() []*source.Source

// Compositor owns the fixed render target and drives the tick loop.
// All GPU calls happen on the goroutine that calls Run, matching the
// concurrency model's "GPU state mutated only on compositor thread"
// rule; Source.Textures/ConvTex/lastVFmt are therefore safe to touch
// here without locking.
type Compositor struct {
	ctx      gpu.Context
	lister   SourceLister
	cache    *videoout.Cache
	width    int
	height   int
	fps      int

	target      gpu.Texture
	drawEffect  gpu.Effect

	frameTime uint64 // ns per tick
	stop      chan struct{}
	done      chan struct{}

	gpuEncodeCB func(GPUFrame) // optional zero-copy GPU-encode hook, bypasses download entirely

	totalTicks   int
	droppedTicks int
}

// New builds a compositor targeting width x height at fps, fed by
// lister, fanning composited frames out through cache.
func New(ctx gpu.Context, width, height, fps int, lister SourceLister, cache *videoout.Cache) (*Compositor, error) {
	if err := ctx.MakeCurrent(); err != nil {
		return nil, fmt.Errorf("compositor: make current: %w", err)
	}
	defer ctx.DoneCurrent()

	target, err := ctx.TextureCreate(width, height, 0, gpu.TextureRenderTarget)
	if err != nil {
		return nil, fmt.Errorf("compositor: create render target: %w", err)
	}
	drawEffect, err := ctx.GetEffectByName("Default_Draw")
	if err != nil {
		return nil, fmt.Errorf("compositor: missing Default_Draw effect: %w", err)
	}

	return &Compositor{
		ctx:        ctx,
		lister:     lister,
		cache:      cache,
		width:      width,
		height:     height,
		fps:        fps,
		target:     target,
		drawEffect: drawEffect,
		frameTime:  uint64(time.Second) / uint64(fps),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// RegisterGPUEncoder registers a zero-copy consumer that receives the
// composited render target texture directly, never downloaded to CPU
// memory (spec.md §4.8's GPU encode fast-path), in addition to
// whatever videoout subscribers are registered for the CPU path via
// RegisterRawSubscriber.
func (c *Compositor) RegisterGPUEncoder(fn func(GPUFrame)) {
	c.gpuEncodeCB = fn
}

// RegisterRawSubscriber registers a CPU-pixel consumer through the
// videoout cache (spec.md §4.3 step 5's raw-pixel path, as opposed to
// the GPU fast path above).
func (c *Compositor) RegisterRawSubscriber(scaleInfo vscale.Info, kind vscale.ScaleType, cb func(videoout.Frame)) (*videoout.Subscriber, error) {
	return c.cache.Subscribe(scaleInfo, kind, cb)
}

// Run drives the tick loop until Stop is called. Intended to run on
// its own goroutine for the lifetime of video output.
func (c *Compositor) Run() {
	defer close(c.done)
	ticker := time.NewTicker(time.Duration(c.frameTime))
	defer ticker.Stop()

	var sysTime uint64
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick(sysTime)
			sysTime += c.frameTime
		}
	}
}

// Stop halts the tick loop and waits for the loop goroutine to exit.
func (c *Compositor) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Compositor) tick(sysTime uint64) {
	if err := c.ctx.MakeCurrent(); err != nil {
		log.Printf("compositor: make current failed, dropping tick: %v", err)
		c.droppedTicks++
		return
	}
	defer c.ctx.DoneCurrent()

	srcs := c.lister()
	for _, s := range srcs {
		if s.Kind == source.KindAsyncVideo || s.Kind == source.KindAudioVideo {
			s.AsyncTick(sysTime)
		}
	}

	for _, s := range srcs {
		if s.Kind == source.KindSyncVideo {
			c.drawSyncSource(s)
			continue
		}
		frame, ok := s.CurrentFrame()
		if !ok {
			continue
		}
		if s.TextureChanged(frame) {
			if err := c.rebuildTextures(s, frame); err != nil {
				log.Printf("compositor: texture rebuild failed for source: %v", err)
				continue
			}
			s.NoteTextureSize(frame)
		} else {
			c.uploadFrame(s, frame)
		}
		c.drawSource(s, frame)
	}

	c.totalTicks++

	if c.gpuEncodeCB != nil {
		c.gpuEncodeCB(GPUFrame{Texture: c.target, Width: c.width, Height: c.height, Timestamp: sysTime})
	}

	if c.cache.SubscriberCount() == 0 {
		// Nobody wants raw pixels; skip the ReadPixels round-trip
		// entirely (the GPU-encode path above already has what it needs).
		return
	}

	out, err := c.download()
	if err != nil {
		log.Printf("compositor: download failed, dropping tick: %v", err)
		c.droppedTicks++
		return
	}
	out.Timestamp = sysTime

	count := 1 // downstream subscriber fan-out is accounted by videoout itself
	idx, locked := c.cache.LockFrame(count, sysTime)
	if !locked {
		return
	}
	c.cache.UnlockFrame(idx, out)
}

// rebuildTextures (re)allocates the per-plane textures and, for YUV
// formats, the intermediate conversion texture, matching
// lite_source.cpp's render_texture rebuild-on-format-change path.
func (c *Compositor) rebuildTextures(s *source.Source, f source.VideoFrame) error {
	layout := mediatype.DescribeLayout(f.Format, f.Width, f.Height)
	for i := 0; i < mediatype.MaxAVPlanes; i++ {
		if s.Textures[i] != nil {
			s.Textures[i].Destroy()
			s.Textures[i] = nil
		}
		if layout.Planes <= i {
			continue
		}
		pw, ph := layout.LineSize[i], layout.PlaneRows[i]
		tex, err := c.ctx.TextureCreate(pw, ph, 0, gpu.TextureDynamic)
		if err != nil {
			return err
		}
		s.Textures[i] = tex
	}
	if s.ConvTex != nil {
		s.ConvTex.Destroy()
		s.ConvTex = nil
	}
	if mediatype.IsYUV(f.Format) {
		tex, err := c.ctx.TextureCreate(f.Width, f.Height, 0, gpu.TextureRenderTarget)
		if err != nil {
			return err
		}
		s.ConvTex = tex
	}
	c.uploadFrame(s, f)
	return nil
}

func (c *Compositor) uploadFrame(s *source.Source, f source.VideoFrame) {
	layout := mediatype.DescribeLayout(f.Format, f.Width, f.Height)
	for i := 0; i < layout.Planes; i++ {
		if s.Textures[i] == nil {
			continue
		}
		if err := c.ctx.TextureSetImage(s.Textures[i], f.Data[i], f.LineSize[i], f.FlipV); err != nil {
			log.Printf("compositor: upload plane %d failed: %v", i, err)
		}
	}
}

// drawSource dispatches the conversion pass (for non-RGBA sources)
// then the final composite draw into the shared render target,
// honoring the source's render-box fit policy.
func (c *Compositor) drawSource(s *source.Source, f source.VideoFrame) {
	srcTex := s.Textures[0]
	if mediatype.IsYUV(f.Format) {
		name := mediatype.ConversionTechnique(f.Format, f.FullRange)
		effect, err := c.ctx.GetEffectByName(name)
		if err != nil {
			log.Printf("compositor: missing conversion effect %q: %v", name, err)
			return
		}
		for i := 0; i < mediatype.MaxAVPlanes && s.Textures[i] != nil; i++ {
			effect.SetTexture(fmt.Sprintf("u_plane%d", i), s.Textures[i])
		}
		effect.SetFloat4x4("u_color_matrix", mediatype.ColorMatrix(f.Colorspace))
		rangeMin, rangeMax := mediatype.RangeMinMax(f.FullRange)
		effect.SetFloat3("u_range_min", rangeMin)
		effect.SetFloat3("u_range_max", rangeMax)
		effect.SetInt("u_plane_count", int32(mediatype.PlaneCount(f.Format)))
		if mediatype.HasAlpha(f.Format) {
			effect.SetInt("u_has_alpha", 1)
		} else {
			effect.SetInt("u_has_alpha", 0)
		}
		if err := c.ctx.DrawConvert(s.ConvTex, effect); err != nil {
			log.Printf("compositor: convert draw failed: %v", err)
			return
		}
		srcTex = s.ConvTex
	}

	cx, cy := fitRenderBox(s.Transform.Box, f.Width, f.Height, c.width, c.height)
	flags := gpu.DrawFlags{FlipH: s.Transform.FlipH, FlipV: s.Transform.FlipV}
	setMatrix := func(cx, cy int) [16]float32 { return transformMatrix(s.Transform, cx, cy) }
	if err := c.ctx.DrawSprite(c.drawEffect, srcTex, c.target, flags, cx, cy, setMatrix); err != nil {
		log.Printf("compositor: draw sprite failed: %v", err)
	}
}

// drawSyncSource renders a sync-video source: set once per display
// frame, typically a GPU texture already on-screen-ready (no CPU
// upload, no YUV conversion pass), so it imports any newly queued
// external handle and draws it straight into the shared target.
func (c *Compositor) drawSyncSource(s *source.Source) {
	if handle, w, h, ok := s.TakePendingExternalTexture(); ok {
		tex, err := c.ctx.TextureCreateFromExternal(handle, w, h)
		if err != nil {
			log.Printf("compositor: external texture import failed: %v", err)
		} else {
			if old, _, _ := s.SyncTextureInfo(); old != nil {
				old.Destroy()
			}
			s.SetSyncTexture(tex, w, h)
		}
	}

	tex, w, h := s.SyncTextureInfo()
	if tex == nil {
		return
	}

	cx, cy := fitRenderBox(s.Transform.Box, w, h, c.width, c.height)
	flags := gpu.DrawFlags{FlipH: s.Transform.FlipH, FlipV: s.Transform.FlipV}
	setMatrix := func(cx, cy int) [16]float32 { return transformMatrix(s.Transform, cx, cy) }
	if err := c.ctx.DrawSprite(c.drawEffect, tex, c.target, flags, cx, cy, setMatrix); err != nil {
		log.Printf("compositor: draw sync source failed: %v", err)
	}
}

func (c *Compositor) download() (videoout.Frame, error) {
	layout := mediatype.DescribeLayout(mediatype.VideoFormatRGBA, c.width, c.height)
	out := videoout.Frame{
		Width:  c.width,
		Height: c.height,
		Format: mediatype.VideoFormatRGBA,
	}
	buf := make([]byte, layout.LineSize[0]*layout.PlaneRows[0])
	if err := c.ctx.ReadPixels(c.target, buf); err != nil {
		return videoout.Frame{}, err
	}
	out.Data[0] = buf
	out.LineSize[0] = layout.LineSize[0]
	return out, nil
}

// TotalTicks and DroppedTicks expose the frame/skip accounting spec.md
// §8 asks a compositor to track alongside videoout's own counters.
func (c *Compositor) TotalTicks() int   { return c.totalTicks }
func (c *Compositor) DroppedTicks() int { return c.droppedTicks }
