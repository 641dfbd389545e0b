package gpu

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	gst "github.com/richinsley/goshadertranslator"

	"github.com/richinsley/mixcore/translator"
)

// glTexture is the go-gl backed Texture.
type glTexture struct {
	id     uint32
	w, h   int
	target uint32
}

func (t *glTexture) Width() int  { return t.w }
func (t *glTexture) Height() int { return t.h }
func (t *glTexture) Destroy()    { gl.DeleteTextures(1, &t.id) }

// glEffect is a compiled program plus a cache of its uniform locations.
type glEffect struct {
	name     string
	program  uint32
	uniforms map[string]int32
	nextUnit uint32
}

func (e *glEffect) Name() string { return e.name }

func (e *glEffect) loc(param string) int32 {
	if l, ok := e.uniforms[param]; ok {
		return l
	}
	l := gl.GetUniformLocation(e.program, gl.Str(param+"\x00"))
	e.uniforms[param] = l // cached whether found or not
	return l
}

func (e *glEffect) SetTexture(param string, tex Texture) {
	gt, ok := tex.(*glTexture)
	if !ok || gt == nil {
		return
	}
	unit := e.nextUnit
	e.nextUnit++
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gt.target, gt.id)
	gl.Uniform1i(e.loc(param), int32(unit))
}

func (e *glEffect) SetFloat(param string, v float32) {
	gl.Uniform1f(e.loc(param), v)
}

func (e *glEffect) SetFloat3(param string, v [3]float32) {
	gl.Uniform3f(e.loc(param), v[0], v[1], v[2])
}

func (e *glEffect) SetInt(param string, v int32) {
	gl.Uniform1i(e.loc(param), v)
}

func (e *glEffect) SetFloat4x4(param string, m [16]float32) {
	gl.UniformMatrix4fv(e.loc(param), 1, false, &m[0])
}

// GLContext is the default Context implementation, driving OpenGL
// directly the way the teacher's renderer/offscreen.go drives FBOs and
// textures, generalized to the fixed conversion-effect registry named
// in the GPU collaborator contract.
type GLContext struct {
	mu      sync.Mutex
	effects map[string]*glEffect
	quadVAO uint32
	quadVBO uint32

	readFBO    uint32
	pbos       [2]uint32
	pboIndex   int
	pboSize    int
}

// NewGLContext compiles the quad geometry and the fixed effect
// registry ("Default_Draw" plus every Convert_* technique mediatype
// can name) up front so a missing shader is caught at startup rather
// than mid-composite.
func NewGLContext() (*GLContext, error) {
	c := &GLContext{effects: make(map[string]*glEffect)}
	c.initQuad()

	if err := c.compileEffect("Default_Draw", defaultDrawFragmentSource); err != nil {
		return nil, err
	}
	convertNames := []string{
		"Convert_UYVY_Reverse", "Convert_YUY2_Reverse", "Convert_YVYU_Reverse",
		"Convert_I420_Reverse", "Convert_NV12_Reverse", "Convert_I444_Reverse",
		"Convert_I422_Reverse", "Convert_I40A_Reverse", "Convert_I42A_Reverse",
		"Convert_YUVA_Reverse", "Convert_AYUV_Reverse",
		"Convert_Y800_Full", "Convert_Y800_Limited",
		"Convert_BGR3_Full", "Convert_BGR3_Limited",
		"Convert_RGB_Limited",
	}
	for _, name := range convertNames {
		if err := c.compileEffect(name, planarConvertFragmentSource); err != nil {
			return nil, fmt.Errorf("gpu: compiling %s: %w", name, err)
		}
	}
	return c, nil
}

func (c *GLContext) initQuad() {
	vertices := []float32{
		-1, -1, 1, -1, -1, 1,
		-1, 1, 1, -1, 1, 1,
	}
	gl.GenVertexArrays(1, &c.quadVAO)
	gl.GenBuffers(1, &c.quadVBO)
	gl.BindVertexArray(c.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 0, nil)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)
}

// compileEffect translates the fixed GLSL source for GLSL-ES
// portability via goshadertranslator (the same singleton the teacher's
// translator package exposes), then links it into a program cached
// under name.
func (c *GLContext) compileEffect(name, fragSource string) error {
	tr := translator.GetTranslator()
	translatedFrag := fragSource
	if tr != nil {
		if out, err := tr.TranslateShader(fragSource, "fragment", gst.ShaderSpecWebGL2, gst.OutputFormatGLSL330); err == nil {
			translatedFrag = out.Code
		}
	}

	vs, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return fmt.Errorf("vertex stage: %w", err)
	}
	fs, err := compileShader(translatedFrag, gl.FRAGMENT_SHADER)
	if err != nil {
		return fmt.Errorf("fragment stage: %w", err)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(program, logLen, nil, gl.Str(log))
		return fmt.Errorf("link failed: %s", log)
	}
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	c.effects[name] = &glEffect{name: name, program: program, uniforms: make(map[string]int32)}
	return nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("compile failed: %s", log)
	}
	return shader, nil
}

func (c *GLContext) MakeCurrent() error { return nil }
func (c *GLContext) DoneCurrent()       {}

func (c *GLContext) TextureCreate(w, h int, internalFormat uint32, flags TextureFlags) (Texture, error) {
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, int32(internalFormat), int32(w), int32(h), 0, gl.RED, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	return &glTexture{id: id, w: w, h: h, target: gl.TEXTURE_2D}, nil
}

func (c *GLContext) TextureSetImage(tex Texture, data []byte, stride int, invertY bool) error {
	gt, ok := tex.(*glTexture)
	if !ok {
		return fmt.Errorf("gpu: TextureSetImage on foreign texture type")
	}
	gl.BindTexture(gl.TEXTURE_2D, gt.id)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(stride))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(gt.w), int32(gt.h), gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(data))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	return nil
}

func (c *GLContext) TextureCreateFromExternal(handle uint32, w, h int) (Texture, error) {
	return &glTexture{id: handle, w: w, h: h, target: gl.TEXTURE_2D}, nil
}

// SupportsExternalTextures is always true for the go-gl backend: a
// sync source's handle is expected to already be a texture name valid
// in the shared GL context, so importing it is a no-op wrap.
func (c *GLContext) SupportsExternalTextures() bool { return true }

func (c *GLContext) GetEffectByName(name string) (Effect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.effects[name]
	if !ok {
		return nil, fmt.Errorf("gpu: no effect registered for %q", name)
	}
	return e, nil
}

func (c *GLContext) DrawSprite(effect Effect, tex Texture, target Texture, flags DrawFlags, cx, cy int, setMatrix SetMatrixFunc) error {
	ge, ok := effect.(*glEffect)
	if !ok {
		return fmt.Errorf("gpu: foreign effect type")
	}
	gl.UseProgram(ge.program)
	ge.nextUnit = 0
	if setMatrix != nil {
		m := setMatrix(cx, cy)
		ge.SetFloat4x4("u_transform", m)
	}
	if tex != nil {
		ge.SetTexture("u_texture", tex)
	}
	bindRenderTarget(target)
	gl.BindVertexArray(c.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	return nil
}

func (c *GLContext) DrawConvert(target Texture, effect Effect) error {
	ge, ok := effect.(*glEffect)
	if !ok {
		return fmt.Errorf("gpu: foreign effect type")
	}
	gl.UseProgram(ge.program)
	bindRenderTarget(target)
	gl.BindVertexArray(c.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	return nil
}

// ReadPixels downloads target through a PBO, the same readback shape
// as the teacher's offscreen.go readPixelsAsync. Two PBOs are
// allocated, but pboIndex is never advanced, so every call reads
// through pbos[0] and maps it straight away: the readback is
// synchronous, once per tick, with no overlap with the next frame's
// render.
func (c *GLContext) ReadPixels(target Texture, dst []byte) error {
	gt, ok := target.(*glTexture)
	if !ok {
		return fmt.Errorf("gpu: ReadPixels on foreign texture type")
	}
	size := gt.w * gt.h * 4
	if len(dst) < size {
		return fmt.Errorf("gpu: ReadPixels dst too small: have %d, need %d", len(dst), size)
	}

	if c.pbos[0] == 0 {
		gl.GenBuffers(2, &c.pbos[0])
	}
	if c.pboSize != size {
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, c.pbos[0])
		gl.BufferData(gl.PIXEL_PACK_BUFFER, size, nil, gl.STREAM_READ)
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, c.pbos[1])
		gl.BufferData(gl.PIXEL_PACK_BUFFER, size, nil, gl.STREAM_READ)
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
		c.pboSize = size
	}
	if c.readFBO == 0 {
		gl.GenFramebuffers(1, &c.readFBO)
	}

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, c.readFBO)
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, gt.id, 0)

	buf := c.pbos[c.pboIndex]
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, buf)
	gl.ReadPixels(0, 0, int32(gt.w), int32(gt.h), gl.RGBA, gl.UNSIGNED_BYTE, nil)

	ptr := gl.MapBufferRange(gl.PIXEL_PACK_BUFFER, 0, size, gl.MAP_READ_BIT)
	if ptr == nil {
		gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
		return fmt.Errorf("gpu: failed to map PBO")
	}
	mapped := unsafe.Slice((*byte)(ptr), size)
	copy(dst, mapped)
	gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)

	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return nil
}

func bindRenderTarget(target Texture) {
	if target == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return
	}
	// Callers that need an off-screen target are expected to have
	// already bound the FBO that owns `target` as a color attachment;
	// the contract only asks us to know which texture we're drawing
	// into, not to own FBO lifetime.
}
