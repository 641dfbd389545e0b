// Package gpu is the named GPU collaborator contract from the
// embeddable surface: texture lifecycle, the fixed conversion/draw
// effect registry, and sprite/convert draw calls. The contract itself
// is intentionally thin (spec.md treats the GPU layer as out of
// scope); this package also carries the one concrete implementation
// (go-gl) the compositor drives by default.
package gpu

// TextureFlags controls how a texture is created.
type TextureFlags int

const (
	TextureStatic TextureFlags = iota
	TextureDynamic
	TextureRenderTarget
)

// Texture is an opaque GPU texture handle.
type Texture interface {
	Width() int
	Height() int
	Destroy()
}

// Effect is a compiled shader program plus its uniform setters.
type Effect interface {
	Name() string
	SetTexture(param string, tex Texture)
	SetFloat(param string, v float32)
	SetFloat3(param string, v [3]float32)
	SetInt(param string, v int32)
	SetFloat4x4(param string, m [16]float32)
}

// DrawFlags mirrors the flip flags the compositor passes through from
// a source's transform state.
type DrawFlags struct {
	FlipH bool
	FlipV bool
}

// SetMatrixFunc lets the caller compute the draw's model matrix lazily,
// right before the draw call, the way draw_sprite's callback does in
// the named contract.
type SetMatrixFunc func(cx, cy int) [16]float32

// Context is the GPU collaborator contract. The compositor makes every
// texture and draw call, from its own dedicated goroutine; outside it,
// mixcore.Core only calls SupportsExternalTextures and, at shutdown,
// MakeCurrent/DoneCurrent.
type Context interface {
	MakeCurrent() error
	DoneCurrent()

	TextureCreate(w, h int, internalFormat uint32, flags TextureFlags) (Texture, error)
	TextureSetImage(tex Texture, data []byte, stride int, invertY bool) error
	TextureCreateFromExternal(handle uint32, w, h int) (Texture, error)

	// SupportsExternalTextures reports whether TextureCreateFromExternal
	// can actually import a foreign GPU handle on this backend. Checked
	// synchronously by source_output_video_texture so a caller gets the
	// "GPU texture-share unsupported" failure (spec.md §7) immediately,
	// without waiting for a compositor tick.
	SupportsExternalTextures() bool

	GetEffectByName(name string) (Effect, error)

	DrawSprite(effect Effect, tex Texture, target Texture, flags DrawFlags, cx, cy int, setMatrix SetMatrixFunc) error
	DrawConvert(target Texture, effect Effect) error

	// ReadPixels downloads target's current contents into dst (which
	// must be at least width*height*4 bytes), for the CPU fan-out path.
	ReadPixels(target Texture, dst []byte) error
}
