// Command mixcore-demo exercises the embeddable mixcore surface
// end-to-end: an optional microphone source, audio mixing, and the
// composited video output, optionally shown in a preview window. It
// writes no file: the -output and -ffmpeg flags are parsed and the
// output name is logged, but no encoder or muxer is started. Adapted
// from the teacher's cmd/main.go flag-struct style.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"time"

	mixcore "github.com/richinsley/mixcore"
	"github.com/richinsley/mixcore/gpu"
	"github.com/richinsley/mixcore/hostsrc"
	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/preview"
	"github.com/richinsley/mixcore/registry"
	"github.com/richinsley/mixcore/videoout"
	"github.com/richinsley/mixcore/vscale"
)

// DemoOptions holds the command-line flags, mirroring the teacher's
// flat flag-struct style (cmd/main.go's ShaderOptions usage).
type DemoOptions struct {
	Width      *int
	Height     *int
	FPS        *int
	SampleRate *int
	OutputFile *string
	FFMPEGPath *string
	Mic        *bool
	Duration   *float64
	Preview    *bool
}

func init() {
	runtime.LockOSThread()
}

func main() {
	opts := &DemoOptions{}
	opts.Width = flag.Int("width", 1280, "composited output width")
	opts.Height = flag.Int("height", 720, "composited output height")
	opts.FPS = flag.Int("fps", 30, "composited output frame rate")
	opts.SampleRate = flag.Int("samplerate", 48000, "mix sample rate")
	opts.OutputFile = flag.String("output", "output.mp4", "output file name")
	opts.FFMPEGPath = flag.String("ffmpeg", "", "path to ffmpeg executable")
	opts.Mic = flag.Bool("mic", false, "register a live microphone source")
	opts.Duration = flag.Float64("duration", 0, "stop after this many seconds (0 = run until Ctrl+C)")
	opts.Preview = flag.Bool("preview", false, "open a window showing the composited output live")
	flag.Parse()

	ctx, err := gpu.NewGLContext()
	if err != nil {
		log.Fatalf("mixcore-demo: gpu context: %v", err)
	}

	core := mixcore.New(ctx)
	defer core.Shutdown()

	if err := core.StartAudio(*opts.SampleRate, mediatype.SpeakersStereo); err != nil {
		log.Fatalf("mixcore-demo: start audio: %v", err)
	}
	if err := core.StartVideo(*opts.Width, *opts.Height, *opts.FPS, 1); err != nil {
		log.Fatalf("mixcore-demo: start video: %v", err)
	}

	var mic *hostsrc.Microphone
	if *opts.Mic {
		owner := core.NextOwnerID()
		_, src := core.CreateSource(owner, registry.TagAudio)
		mic, err = hostsrc.NewMicrophone(src, *opts.SampleRate)
		if err != nil {
			log.Fatalf("mixcore-demo: microphone: %v", err)
		}
		if err := mic.Start(); err != nil {
			log.Fatalf("mixcore-demo: microphone start: %v", err)
		}
		defer mic.Stop()
		log.Println("mixcore-demo: microphone source registered")
	}

	log.Printf("mixcore-demo: compositing %dx%d @ %d fps (output file %s is not written)",
		*opts.Width, *opts.Height, *opts.FPS, *opts.OutputFile)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var deadline <-chan time.Time
	if *opts.Duration > 0 {
		deadline = time.After(time.Duration(*opts.Duration * float64(time.Second)))
	}

	if *opts.Preview {
		runPreview(core, *opts.Width, *opts.Height, stop, deadline)
	} else {
		select {
		case <-stop:
		case <-deadline:
		}
	}

	fmt.Println("mixcore-demo: shutting down")
}

// runPreview opens a window and pumps composited frames into it until
// the user closes the window, hits Ctrl+C, or the duration elapses.
// GLFW/GL calls here all stay on this goroutine's locked OS thread;
// the video_subscribe callback only ever hands frames off through a
// channel, never touching GL state itself.
func runPreview(core *mixcore.Core, width, height int, stop chan os.Signal, deadline <-chan time.Time) {
	win, err := preview.New(width, height, "mixcore preview")
	if err != nil {
		log.Printf("mixcore-demo: preview disabled: %v", err)
		select {
		case <-stop:
		case <-deadline:
		}
		return
	}
	defer win.Close()

	frames := make(chan videoout.Frame, 2)
	sub, err := core.VideoSubscribe(vscale.Info{Format: mediatype.VideoFormatRGBA, Width: width, Height: height}, vscale.ScaleBilinear, func(f videoout.Frame) {
		select {
		case frames <- f:
		default:
		}
	})
	if err != nil {
		log.Printf("mixcore-demo: preview subscribe: %v", err)
		return
	}
	defer core.VideoUnsubscribe(sub)

	for !win.ShouldClose() {
		select {
		case <-stop:
			return
		case <-deadline:
			return
		case f := <-frames:
			win.ShowFrame(f)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
