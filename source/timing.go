package source

const (
	// MaxTSVariance is the window within which an incoming timestamp is
	// assumed to already be wall-clock based ("direct timestamp").
	MaxTSVariance = uint64(2_000_000_000) // 2s, ns

	// TSSmoothingThreshold is the drift band below which a timestamp is
	// snapped to the predicted next timestamp instead of treated as a
	// discontinuity.
	TSSmoothingThreshold = uint64(70_000_000) // 70ms, ns
)

// tsDiff mirrors the original's uint64_diff: an unsigned absolute
// difference that is well-defined regardless of which side is larger.
func tsDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func framesToNS(frames uint32, sampleRate int) uint64 {
	if sampleRate == 0 {
		return 0
	}
	return uint64(frames) * 1_000_000_000 / uint64(sampleRate)
}
