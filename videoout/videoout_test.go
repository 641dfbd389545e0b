package videoout

import (
	"testing"

	"github.com/richinsley/mixcore/mediatype"
	"github.com/richinsley/mixcore/vscale"
)

func TestSeventeenthLockFrameStarves(t *testing.T) {
	native := vscale.Info{Format: mediatype.VideoFormatI420, Width: 640, Height: 360}
	c := Open(native, 16_666_667)
	defer c.Close()

	for i := 0; i < CacheSize; i++ {
		_, locked := c.LockFrame(1, uint64(i))
		if !locked {
			t.Fatalf("slot %d: expected locked, cache should not be exhausted yet", i)
		}
	}

	_, locked := c.LockFrame(1, 16)
	if locked {
		t.Fatalf("17th LockFrame should fail with an exhausted ring")
	}
	if c.SkippedFrames() != 1 {
		t.Fatalf("skipped = %d, want 1", c.SkippedFrames())
	}
}
