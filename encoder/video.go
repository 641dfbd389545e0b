package encoder

import (
	"sync"
)

// VideoEncoder owns start_ts establishment and the SEI-prepend path.
type VideoEncoder struct {
	initMu sync.Mutex

	codec           Codec
	active          bool
	startTS         uint64
	customSEI       []byte
	firstOffsetSet  bool
	firstOffsetUsec int64

	callbacksMu sync.Mutex
	callbacks   []*callback

	outputsMu sync.Mutex
	outputs   []func()
}

// NewVideoEncoder wraps a codec-specific implementation.
func NewVideoEncoder(codec Codec) *VideoEncoder {
	return &VideoEncoder{codec: codec}
}

// SetCustomSEI registers bytes to prepend to the first emitted
// keyframe only (spec.md §4.5 + the original's send_first_video_packet).
func (e *VideoEncoder) SetCustomSEI(b []byte) {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	e.customSEI = b
}

// Start marks the encoder active; start_ts is established lazily by
// the first received frame.
func (e *VideoEncoder) Start() {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	e.active = true
}

// StartTS returns the established start timestamp, or 0 if not yet set
// (used by a paired audio encoder as v_start_ts).
func (e *VideoEncoder) StartTS() uint64 {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	return e.startTS
}

// ReceiveFrame encodes one video frame, establishing start_ts on the
// first call.
func (e *VideoEncoder) ReceiveFrame(f Frame) error {
	e.initMu.Lock()
	if !e.active {
		e.initMu.Unlock()
		return errNotStarted
	}
	if e.startTS == 0 {
		e.startTS = f.Timestamp
	}
	e.initMu.Unlock()

	pkt, err := e.codec.Encode(f)
	if err != nil {
		e.fullStop()
		return err
	}
	if pkt == nil {
		return nil
	}
	e.rebaseAndSend(pkt)
	return nil
}

// AddOnStop registers a teardown callback invoked by fullStop, used by
// an owning output to detach itself when the codec reports a fatal
// encode error.
func (e *VideoEncoder) AddOnStop(fn func()) {
	e.outputsMu.Lock()
	defer e.outputsMu.Unlock()
	e.outputs = append(e.outputs, fn)
}

// rebaseAndSend applies the packet-timing rule from spec.md §4.5: the
// first packet establishes an offset; every packet (including the
// first) is rebased to start_ts/1000 + raw_dts - offset.
func (e *VideoEncoder) rebaseAndSend(pkt *Packet) {
	e.initMu.Lock()
	if !e.firstOffsetSet {
		e.firstOffsetUsec = packetDTSUsec(pkt)
		e.firstOffsetSet = true
	}
	offset := e.firstOffsetUsec
	startTS := e.startTS
	e.initMu.Unlock()

	pkt.DTSUsec = int64(startTS)/1000 + packetDTSUsec(pkt) - offset
	pkt.SysDTSUsec = pkt.DTSUsec
	pkt.Video = true

	e.callbacksMu.Lock()
	cbs := append([]*callback(nil), e.callbacks...)
	e.callbacksMu.Unlock()

	for _, cb := range cbs {
		e.sendToCallback(cb, pkt)
	}
}

// sendToCallback prepends the custom SEI/header bytes ahead of the
// very first keyframe delivered to this specific callback.
func (e *VideoEncoder) sendToCallback(cb *callback, pkt *Packet) {
	if !cb.sentFirstPacket && pkt.Keyframe && len(e.customSEI) > 0 {
		merged := make([]byte, 0, len(e.customSEI)+len(pkt.Data))
		merged = append(merged, e.customSEI...)
		merged = append(merged, pkt.Data...)
		prefixed := *pkt
		prefixed.Data = merged
		cb.fn(&prefixed)
		cb.sentFirstPacket = true
		return
	}
	cb.fn(pkt)
	if pkt.Keyframe {
		cb.sentFirstPacket = true
	}
}

// AddCallback registers a packet consumer.
func (e *VideoEncoder) AddCallback(fn func(*Packet)) {
	e.callbacksMu.Lock()
	defer e.callbacksMu.Unlock()
	e.callbacks = append(e.callbacks, &callback{fn: fn})
}

// fullStop implements spec.md §7's encoder-failure policy: stop all
// outputs holding this encoder, disconnect, and clear callbacks. The
// init mutex is released before touching outputs/callbacks to avoid a
// lock-order inversion with an owning output's own input mutex.
func (e *VideoEncoder) fullStop() {
	e.initMu.Lock()
	e.active = false
	e.initMu.Unlock()

	e.outputsMu.Lock()
	stops := append([]func(){}, e.outputs...)
	e.outputs = nil
	e.outputsMu.Unlock()
	for _, stop := range stops {
		stop()
	}

	e.callbacksMu.Lock()
	e.callbacks = nil
	e.callbacksMu.Unlock()
}
