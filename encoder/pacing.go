// Package encoder implements the encoder A/V start-sync pairing (spec
// component C5): video/audio start-timestamp rendezvous, audio
// truncate/back-fill, packet dts_usec rebasing, SEI prepend on the
// first keyframe, and full-stop teardown. Muxing to a concrete
// container is delegated to ffmpeg-go, adapted from the teacher's
// RunOffscreen pipe pattern.
package encoder

import (
	"fmt"
)

// Packet is one encoded access unit.
type Packet struct {
	Data      []byte
	PTS       int64
	DTSUsec   int64
	SysDTSUsec int64
	Keyframe  bool
	Video     bool
}

// Frame is the raw input handed to Encode: one video frame or one
// audio chunk, in the codec's expected layout.
type Frame struct {
	Data      [][]byte
	Frames    int
	PTS       int64
	Timestamp uint64
}

// Codec is the named external collaborator a concrete encoder
// implementation (h264, aac, ...) must satisfy; codec internals are
// out of scope (spec.md §1).
type Codec interface {
	Encode(f Frame) (*Packet, error)
	Flush() []*Packet
	Close() error
}

// callback is one registered packet consumer plus whether it has
// already received its first packet (on the video side: its first
// keyframe, the one the custom SEI bytes are prepended to).
type callback struct {
	sentFirstPacket bool
	fn              func(*Packet)
}

// packetDTSUsec extracts a codec packet's raw decode timestamp in
// microseconds, before any start_ts rebasing.
func packetDTSUsec(p *Packet) int64 { return p.DTSUsec }

func framesToDurationNS(frames int, sampleRate int) uint64 {
	if sampleRate == 0 {
		return 0
	}
	return uint64(frames) * 1_000_000_000 / uint64(sampleRate)
}

var errNotStarted = fmt.Errorf("encoder: not started")
