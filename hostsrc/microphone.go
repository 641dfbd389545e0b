// Package hostsrc adapts real host devices into the embeddable core's
// source contract: each producer here owns a *source.Source and calls
// its OutputAudio/OutputVideo as real data arrives, rather than the
// teacher's channel-based consumer pattern.
package hostsrc

import (
	"fmt"
	"log"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/source"
)

// Microphone drives a mono portaudio input stream straight into a
// mixcore audio source, timestamping each callback with the wall
// clock the way a live capture device would. Adapted from the
// teacher's audio/microphone.go, which instead fanned callback data
// out over a Go channel to a single consumer loop; here the portaudio
// callback calls OutputAudio directly since Source's audio path is
// already safe to call from an arbitrary producer goroutine.
type Microphone struct {
	src        *source.Source
	sampleRate int
	stream     *portaudio.Stream
	streaming  bool
}

// NewMicrophone initializes portaudio and binds src; the mono input
// stream itself is opened by Start.
func NewMicrophone(src *source.Source, sampleRate int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("hostsrc: portaudio init: %w", err)
	}
	return &Microphone{src: src, sampleRate: sampleRate}, nil
}

func (m *Microphone) callback(in []float32) {
	dataCopy := make([]float32, len(in))
	copy(dataCopy, in)

	err := m.src.OutputAudio(source.AudioFrame{
		Data:       [][]float32{dataCopy},
		Frames:     uint32(len(dataCopy)),
		Format:     mediatype.AudioFormatF32Planar,
		Speakers:   mediatype.SpeakersMono,
		SampleRate: m.sampleRate,
		Timestamp:  uint64(time.Now().UnixNano()),
	})
	if err != nil {
		log.Printf("hostsrc: microphone OutputAudio: %v", err)
	}
}

// Start opens and starts the stream on the default input device.
func (m *Microphone) Start() error {
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return fmt.Errorf("hostsrc: default host api: %w", err)
	}

	params := portaudio.HighLatencyParameters(host.DefaultInputDevice, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(m.sampleRate)

	stream, err := portaudio.OpenStream(params, m.callback)
	if err != nil {
		return fmt.Errorf("hostsrc: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("hostsrc: start stream: %w", err)
	}
	m.stream = stream
	m.streaming = true
	return nil
}

// Stop closes the stream and terminates portaudio.
func (m *Microphone) Stop() error {
	if !m.streaming {
		return nil
	}
	m.streaming = false
	if err := m.stream.Close(); err != nil {
		portaudio.Terminate()
		return err
	}
	return portaudio.Terminate()
}
