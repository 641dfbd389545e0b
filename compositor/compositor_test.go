package compositor

import (
	"testing"
	"time"

	"github.com/richinsley/mixcore/gpu"
	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/source"
	"github.com/richinsley/mixcore/vscale"
	"github.com/richinsley/mixcore/videoout"
)

type fakeTexture struct{ w, h int }

func (t *fakeTexture) Width() int  { return t.w }
func (t *fakeTexture) Height() int { return t.h }
func (t *fakeTexture) Destroy()    {}

type fakeEffect struct{ name string }

func (e *fakeEffect) Name() string                            { return e.name }
func (e *fakeEffect) SetTexture(param string, tex gpu.Texture) {}
func (e *fakeEffect) SetFloat(param string, v float32)        {}
func (e *fakeEffect) SetFloat3(param string, v [3]float32)    {}
func (e *fakeEffect) SetInt(param string, v int32)            {}
func (e *fakeEffect) SetFloat4x4(param string, m [16]float32) {}

type fakeCtx struct{}

func (c *fakeCtx) MakeCurrent() error { return nil }
func (c *fakeCtx) DoneCurrent()       {}
func (c *fakeCtx) TextureCreate(w, h int, internalFormat uint32, flags gpu.TextureFlags) (gpu.Texture, error) {
	return &fakeTexture{w: w, h: h}, nil
}
func (c *fakeCtx) TextureSetImage(tex gpu.Texture, data []byte, stride int, invertY bool) error {
	return nil
}
func (c *fakeCtx) TextureCreateFromExternal(handle uint32, w, h int) (gpu.Texture, error) {
	return &fakeTexture{w: w, h: h}, nil
}
func (c *fakeCtx) SupportsExternalTextures() bool { return true }
func (c *fakeCtx) GetEffectByName(name string) (gpu.Effect, error) { return &fakeEffect{name: name}, nil }
func (c *fakeCtx) DrawSprite(effect gpu.Effect, tex gpu.Texture, target gpu.Texture, flags gpu.DrawFlags, cx, cy int, setMatrix gpu.SetMatrixFunc) error {
	if setMatrix != nil {
		setMatrix(cx, cy)
	}
	return nil
}
func (c *fakeCtx) DrawConvert(target gpu.Texture, effect gpu.Effect) error { return nil }
func (c *fakeCtx) ReadPixels(target gpu.Texture, dst []byte) error {
	for i := range dst {
		dst[i] = 0x7F
	}
	return nil
}

func TestTickDownloadsAndDeliversOneFrame(t *testing.T) {
	ctx := &fakeCtx{}
	native := vscale.Info{Format: mediatype.VideoFormatRGBA, Width: 64, Height: 36}
	cache := videoout.Open(native, 16_666_667)
	defer cache.Close()

	src := source.New(source.KindAsyncVideo, 48000, 2)
	src.OutputVideo(source.VideoFrame{Width: 64, Height: 36, Format: mediatype.VideoFormatI420, Timestamp: 0})

	lister := func() []*source.Source { return []*source.Source{src} }
	comp, err := New(ctx, 64, 36, 60, lister, cache)
	if err != nil {
		t.Fatal(err)
	}

	delivered := make(chan videoout.Frame, 1)
	if _, err := cache.Subscribe(native, vscale.ScalePoint, func(f videoout.Frame) { delivered <- f }); err != nil {
		t.Fatal(err)
	}

	comp.tick(0)
	if comp.TotalTicks() != 1 {
		t.Fatalf("total ticks = %d, want 1", comp.TotalTicks())
	}

	select {
	case f := <-delivered:
		if f.Width != 64 || f.Height != 36 {
			t.Fatalf("unexpected frame dims: %dx%d", f.Width, f.Height)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a delivered frame")
	}
}
