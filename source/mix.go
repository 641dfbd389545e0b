package source

import "log"

// TSInfo is the timestamp window a mix tick covers.
type TSInfo struct {
	Start uint64
	End   uint64
}

// MixOutput is the caller-provided accumulation target for one tick,
// indexed [mixIndex][channel].
type MixOutput [MaxAudioMixes][MaxAudioChannels][]float32

// AudioRender is called once per tick by the mix engine before the
// min-timestamp pass; it either fills audioOutputBuf from the input
// ring (audioSourceTick) or marks the source pending.
func (s *Source) AudioRender(mixers uint32, channels int, sampleRate int) {
	s.audioBufMu.Lock()
	defer s.audioBufMu.Unlock()

	if s.audioInputBuf[0] == nil || s.audioTS == 0 {
		s.audioPendingFlag = true
		return
	}
	s.audioSourceTick(mixers&s.audioMixers, channels, sampleRate, AudioOutputFrames)
}

func (s *Source) audioSourceTick(mixers uint32, channels int, sampleRate int, frameCount int) {
	required := frameCount
	if s.audioInputBuf[0].sampleCount() < required {
		s.audioPendingFlag = true
		return
	}

	for ch := 0; ch < channels; ch++ {
		s.audioInputBuf[ch].peekFront(s.audioOutputBuf[0][ch][:frameCount])
	}
	for mix := 1; mix < MaxAudioMixes; mix++ {
		bit := uint32(1) << uint(mix)
		for ch := 0; ch < channels; ch++ {
			if mixers&bit != 0 {
				copy(s.audioOutputBuf[mix][ch][:frameCount], s.audioOutputBuf[0][ch][:frameCount])
			} else {
				for i := range s.audioOutputBuf[mix][ch][:frameCount] {
					s.audioOutputBuf[mix][ch][i] = 0
				}
			}
		}
	}
	s.applyAudioVolume(mixers, channels, sampleRate)
	s.audioPendingFlag = false
}

func (s *Source) getSourceVolume() float32 {
	if s.userMuted || s.muted {
		return 0
	}
	return s.volume * s.userVolume
}

func (s *Source) multiplyOutputAudio(mix, channels int, vol float32) {
	for ch := 0; ch < channels; ch++ {
		buf := s.audioOutputBuf[mix][ch]
		for i := range buf {
			buf[i] *= vol
		}
	}
}

func (s *Source) applyAudioVolume(mixers uint32, channels int, sampleRate int) {
	vol := s.getSourceVolume()
	if vol == 1.0 {
		return
	}
	for mix := 0; mix < MaxAudioMixes; mix++ {
		bit := uint32(1) << uint(mix)
		if mixers&bit == 0 {
			continue
		}
		if vol == 0.0 {
			for ch := 0; ch < channels; ch++ {
				for i := range s.audioOutputBuf[mix][ch] {
					s.audioOutputBuf[mix][ch][i] = 0
				}
			}
			continue
		}
		s.multiplyOutputAudio(mix, channels, vol)
	}
}

// audioBufferInsuffient reports whether the buffered bytes fall short
// of covering minTS; the misspelling is kept deliberately (see
// DESIGN.md) since this name never crosses the public boundary.
func (s *Source) audioBufferInsuffient(sampleRate int, minTS uint64) bool {
	if s.audioTS == 0 {
		return true
	}
	bufferedNS := uint64(s.audioInputBuf[0].sampleCount()) * 1_000_000_000 / uint64(sampleRate)
	return s.audioTS+bufferedNS < minTS
}

// AudioBufferInsufficient is the mix engine's entry point for
// mark_invalid_sources (spec.md §4.2 step 4): it reports whether this
// source cannot actually cover minTS with what it currently has
// buffered, even though its audio_ts looked eligible a moment ago.
func (s *Source) AudioBufferInsufficient(sampleRate int, minTS uint64) bool {
	s.audioBufMu.Lock()
	defer s.audioBufMu.Unlock()
	return s.audioBufferInsuffient(sampleRate, minTS)
}

// MarkAudioPending flips the source to pending ahead of the next mix
// pass, the "mark_invalid_sources" outcome when a source's buffer
// can't actually cover the candidate minimum timestamp.
func (s *Source) MarkAudioPending() {
	s.audioPendingFlag = true
}

// MixAudio sums this source's contribution for the window ts into
// mixes, if the source's buffer base falls inside the window. Uses a
// deferred unlock so every early return honors the same lock scoping
// (the original's manual lock/unlock has early returns that skip the
// unlock call; see DESIGN.md).
func (s *Source) MixAudio(mixes *MixOutput, channels int, sampleRate int, ts TSInfo) {
	s.audioBufMu.Lock()
	defer s.audioBufMu.Unlock()

	if s.audioTS < ts.Start || ts.End <= s.audioTS {
		return
	}

	startSample := int((s.audioTS - ts.Start) * uint64(sampleRate) / 1_000_000_000)
	_ = startSample // offset into the output window; output_buf already holds exactly one tick

	for mix := 0; mix < MaxAudioMixes; mix++ {
		for ch := 0; ch < channels; ch++ {
			dst := mixes[mix][ch]
			src := s.audioOutputBuf[mix][ch]
			for i := 0; i < AudioOutputFrames && i < len(dst) && i < len(src); i++ {
				dst[i] += src[i]
			}
		}
	}
}

// DiscardAudio advances audioTS past the window ts, per spec.md §4.2
// step 7.
func (s *Source) DiscardAudio(totalBufferingTicks int, channels int, sampleRate int, ts TSInfo) {
	s.audioBufMu.Lock()
	defer s.audioBufMu.Unlock()

	if s.audioTS == 0 {
		return
	}

	if s.audioTS < ts.Start-1 {
		if s.audioPendingFlag && s.audioInputBuf[0].sampleCount() < AudioOutputFrames {
			s.discardIfStoppedLocked(channels)
			return
		}
		if totalBufferingTicks >= MaxBufferingTicks {
			s.ignoreAudioLocked(channels, sampleRate)
			return
		}
	}

	for ch := 0; ch < channels; ch++ {
		s.audioInputBuf[ch].popFront(AudioOutputFrames)
	}
	s.audioTS = ts.End
}

// discardIfStoppedLocked deems the source stopped if its buffer size
// hasn't grown across two consecutive ticks.
func (s *Source) discardIfStoppedLocked(channels int) {
	size := s.audioInputBuf[0].sampleCount()
	if s.stopTickSeen && size == s.prevTickBufSize {
		for ch := 0; ch < channels; ch++ {
			s.audioInputBuf[ch].clear()
		}
		s.audioTS = 0
		s.stopTickSeen = false
		return
	}
	s.prevTickBufSize = size
	s.stopTickSeen = true
}

func (s *Source) ignoreAudioLocked(channels int, sampleRate int) {
	buffered := s.audioInputBuf[0].sampleCount()
	for ch := 0; ch < channels; ch++ {
		s.audioInputBuf[ch].clear()
	}
	s.audioTS += uint64(buffered) * 1_000_000_000 / uint64(sampleRate)
	log.Printf("source: ignoring %d buffered frames, advancing audio_ts", buffered)
}

// MaxBufferingTicks bounds the total buffering the mix engine may
// inject before it starts dropping instead of waiting.
const MaxBufferingTicks = 45
