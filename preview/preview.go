// Package preview provides an optional on-screen window showing the
// compositor's composited output, driven by go-gl/glfw. It is the
// only package in the module that imports glfw, mirroring the
// teacher's rule that glfwcontext was the sole glfw-importing
// package. A host that only needs file/stream output never imports
// this package at all.
package preview

import (
	"fmt"
	"log"
	"runtime"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/richinsley/mixcore/videoout"
)

// Window shows composited RGBA frames in an on-screen GLFW window via
// a blit texture. Adapted from the teacher's glfwcontext/context.go
// (window lifecycle) combined with a minimal textured-quad blit rather
// than the teacher's full shader-pass renderer, since preview only
// ever displays one already-composited frame per tick.
type Window struct {
	win     *glfw.Window
	tex     uint32
	quadVAO uint32
	program uint32
	w, h    int
}

// New opens a window of the given size and compiles the blit program.
// Must be called from the process's locked OS thread (runtime.LockOSThread
// in main, same requirement the teacher's cmd/main.go documents).
func New(width, height int, title string) (*Window, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("preview: glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("preview: create window: %w", err)
	}
	win.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("preview: gl init: %w", err)
	}
	log.Printf("preview: OpenGL version %s", gl.GoStr(gl.GetString(gl.VERSION)))

	w := &Window{win: win, w: width, h: height}
	if err := w.initBlit(); err != nil {
		return nil, err
	}
	return w, nil
}

// ShouldClose reports whether the user has requested the window close.
func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

// Close terminates glfw. Call once, after the last Window in the
// process is done (glfw.Terminate tears down the whole library).
func (w *Window) Close() { glfw.Terminate() }

// ShowFrame uploads and blits one composited RGBA frame, then swaps
// buffers and polls for input events. It must run on the window's own
// thread, so a videoout subscriber does not call it directly:
// cmd/mixcore-demo's subscriber hands each frame over a channel and
// the window loop calls ShowFrame.
func (w *Window) ShowFrame(f videoout.Frame) {
	if f.Width != w.w || f.Height != w.h {
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, w.tex)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(f.Width), int32(f.Height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(f.Data[0]))

	gl.Viewport(0, 0, int32(w.w), int32(w.h))
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(w.program)
	gl.BindVertexArray(w.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)

	w.win.SwapBuffers()
	glfw.PollEvents()
}

func (w *Window) initBlit() error {
	gl.GenTextures(1, &w.tex)
	gl.BindTexture(gl.TEXTURE_2D, w.tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w.w), int32(w.h), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	vertices := []float32{-1, -1, 1, -1, -1, 1, -1, 1, 1, -1, 1, 1}
	var vbo uint32
	gl.GenVertexArrays(1, &w.quadVAO)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(w.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 0, nil)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)

	vsSrc := "#version 410 core\nlayout(location=0) in vec2 p;\nout vec2 uv;\nvoid main(){uv=(p+1.0)*0.5;gl_Position=vec4(p,0,1);}\x00"
	fsSrc := "#version 410 core\nin vec2 uv;\nout vec4 frag;\nuniform sampler2D tex;\nvoid main(){frag=texture(tex,uv);}\x00"

	vs, err := compile(vsSrc, gl.VERTEX_SHADER)
	if err != nil {
		return err
	}
	fs, err := compile(fsSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return err
	}
	w.program = gl.CreateProgram()
	gl.AttachShader(w.program, vs)
	gl.AttachShader(w.program, fs)
	gl.LinkProgram(w.program)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)
	return nil
}

func compile(src string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csource, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		return 0, fmt.Errorf("preview: shader compile failed")
	}
	return shader, nil
}
