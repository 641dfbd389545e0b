package encoder

import (
	"container/list"
	"sync"
)

// AudioEncoder is paired with at most one VideoEncoder (spec.md §4.5).
// Before the pair commits to a shared start_ts it buffers incoming
// audio chunks internally rather than dropping them, so the eventual
// commit can truncate or back-fill against real buffered samples.
// Grounded on the original's lite_encoder.cpp buffer_audio/
// calc_offset_size/start_from_buffer/push_back_audio chain.
type AudioEncoder struct {
	mu sync.Mutex

	codec      Codec
	video      *VideoEncoder
	sampleRate int
	channels   int

	active       bool
	started      bool // true once start_ts is committed
	startTS      uint64
	waitForVideo bool

	firstOffsetSet  bool
	firstOffsetUsec int64

	buffered *list.List // of Frame, oldest first

	callbacksMu sync.Mutex
	callbacks   []*callback
}

// NewAudioEncoder pairs a codec with the video encoder whose start_ts
// this audio stream must rendezvous with.
func NewAudioEncoder(codec Codec, video *VideoEncoder, sampleRate, channels int) *AudioEncoder {
	return &AudioEncoder{
		codec:        codec,
		video:        video,
		sampleRate:   sampleRate,
		channels:     channels,
		waitForVideo: true,
		buffered:     list.New(),
	}
}

// SetWaitForVideo toggles whether this encoder waits for its paired
// video encoder's start_ts before committing (spec.md §4.8's
// lite_obs_encoder_set_wait_for_video). With wait disabled (or when
// there is no paired video encoder at all) ReceiveChunk starts
// immediately from each chunk's own timestamp instead of buffering
// against the pairing rendezvous.
func (e *AudioEncoder) SetWaitForVideo(wait bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waitForVideo = wait
}

// Start marks the encoder active; pairing still waits for the video
// encoder's start_ts.
func (e *AudioEncoder) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = true
}

// AddCallback registers a packet consumer.
func (e *AudioEncoder) AddCallback(fn func(*Packet)) {
	e.callbacksMu.Lock()
	defer e.callbacksMu.Unlock()
	e.callbacks = append(e.callbacks, &callback{fn: fn})
}

// ReceiveChunk is called once per audio tick. Until the pair commits,
// every chunk is buffered (not dropped) so that once video's start_ts
// appears, the exact boundary to truncate from can be found without
// having lost samples already produced before the video stream was
// ready.
func (e *AudioEncoder) ReceiveChunk(f Frame) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return errNotStarted
	}

	if e.started {
		e.mu.Unlock()
		return e.encodeAndSend(f)
	}

	if !e.waitForVideo || e.video == nil {
		e.startTS = f.Timestamp
		e.started = true
		e.mu.Unlock()
		return e.encodeAndSend(f)
	}

	vStart := e.video.StartTS()
	if vStart == 0 {
		// Video hasn't produced a frame yet; keep buffering.
		e.buffered.PushBack(f)
		e.mu.Unlock()
		return nil
	}

	// Video has a start_ts now: commit the pair and resolve the
	// boundary against everything buffered so far plus this chunk.
	e.buffered.PushBack(f)
	pending := e.buffered
	e.buffered = list.New()
	e.startTS = vStart
	e.started = true
	e.mu.Unlock()

	return e.startFromBuffer(pending, vStart)
}

// startFromBuffer implements the original's start_from_buffer: walk
// the buffered chunks in order, dropping any that end strictly before
// vStart, truncating the one that straddles vStart, and back-filling
// silence if the first usable chunk begins strictly after vStart (the
// video stream started before any audio had been buffered at all).
func (e *AudioEncoder) startFromBuffer(pending *list.List, vStart uint64) error {
	first := true
	for el := pending.Front(); el != nil; el = el.Next() {
		f := el.Value.(Frame)
		chunkDur := framesToDurationNS(f.Frames, e.sampleRate)
		chunkEnd := f.Timestamp + chunkDur

		if chunkEnd <= vStart {
			continue // entirely before the pairing point, discard
		}

		if first && f.Timestamp < vStart {
			f = e.truncateLeading(f, vStart)
		} else if first && f.Timestamp > vStart {
			if gap := e.backfillSilence(f.Timestamp - vStart); gap != nil {
				if err := e.encodeAndSend(*gap); err != nil {
					return err
				}
			}
		}
		first = false

		if err := e.encodeAndSend(f); err != nil {
			return err
		}
	}
	return nil
}

// truncateLeading drops the leading frames of f that fall before
// vStart, matching calc_offset_size's sample-accurate trim.
func (e *AudioEncoder) truncateLeading(f Frame, vStart uint64) Frame {
	skipNS := vStart - f.Timestamp
	skipFrames := int(skipNS * uint64(e.sampleRate) / 1_000_000_000)
	if skipFrames <= 0 || skipFrames >= f.Frames {
		return f
	}
	out := Frame{Frames: f.Frames - skipFrames, PTS: f.PTS, Timestamp: vStart}
	out.Data = make([][]byte, len(f.Data))
	for ch, plane := range f.Data {
		bytesPerFrame := len(plane) / f.Frames
		out.Data[ch] = plane[skipFrames*bytesPerFrame:]
	}
	return out
}

// backfillSilence manufactures a silent chunk covering the gap
// between vStart and the first real chunk, so the muxed audio track
// doesn't start with a discontinuity relative to the paired video.
func (e *AudioEncoder) backfillSilence(gapNS uint64) *Frame {
	frames := int(gapNS * uint64(e.sampleRate) / 1_000_000_000)
	if frames <= 0 {
		return nil
	}
	data := make([][]byte, e.channels)
	for ch := range data {
		data[ch] = make([]byte, frames*4) // f32 planar
	}
	return &Frame{Data: data, Frames: frames, Timestamp: e.startTS}
}

func (e *AudioEncoder) encodeAndSend(f Frame) error {
	pkt, err := e.codec.Encode(f)
	if err != nil {
		e.fullStop()
		return err
	}
	if pkt == nil {
		return nil
	}
	if !e.firstOffsetSet {
		e.firstOffsetUsec = packetDTSUsec(pkt)
		e.firstOffsetSet = true
	}
	pkt.DTSUsec = int64(e.startTS)/1000 + packetDTSUsec(pkt) - e.firstOffsetUsec
	pkt.SysDTSUsec = pkt.DTSUsec

	e.callbacksMu.Lock()
	cbs := append([]*callback(nil), e.callbacks...)
	e.callbacksMu.Unlock()
	for _, cb := range cbs {
		cb.fn(pkt)
		cb.sentFirstPacket = true
	}
	return nil
}

// fullStop mirrors VideoEncoder.fullStop for the paired audio side.
func (e *AudioEncoder) fullStop() {
	e.mu.Lock()
	e.active = false
	e.started = false
	e.firstOffsetSet = false
	e.buffered = list.New()
	e.mu.Unlock()

	e.callbacksMu.Lock()
	e.callbacks = nil
	e.callbacksMu.Unlock()
}
