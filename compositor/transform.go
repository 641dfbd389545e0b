package compositor

import (
	"github.com/richinsley/mixcore/source"
)

// fitRenderBox resolves a source's render box (or, when disabled, the
// full canvas) into the final draw dimensions, applying the aspect
// policy from spec.md's render-box fit modes: Ignore stretches to
// fill, Keep letterboxes preserving aspect, Keep-by-Expanding
// overscans preserving aspect.
func fitRenderBox(box source.RenderBox, srcW, srcH, canvasW, canvasH int) (int, int) {
	boxW, boxH := canvasW, canvasH
	if box.Enabled {
		boxW, boxH = box.W, box.H
	}
	if srcW <= 0 || srcH <= 0 || boxW <= 0 || boxH <= 0 {
		return boxW, boxH
	}

	switch box.Mode {
	case source.AspectIgnore:
		return boxW, boxH
	case source.AspectKeep:
		return fitPreserving(srcW, srcH, boxW, boxH, false)
	case source.AspectKeepByExpanding:
		return fitPreserving(srcW, srcH, boxW, boxH, true)
	default:
		return boxW, boxH
	}
}

// fitPreserving scales (srcW, srcH) to fit within (boxW, boxH)
// preserving aspect ratio; expand picks the larger of the two
// candidate scales (overscan) instead of the smaller (letterbox).
func fitPreserving(srcW, srcH, boxW, boxH int, expand bool) (int, int) {
	scaleX := float64(boxW) / float64(srcW)
	scaleY := float64(boxH) / float64(srcH)
	scale := scaleX
	if expand {
		if scaleY > scale {
			scale = scaleY
		}
	} else if scaleY < scale {
		scale = scaleY
	}
	return int(float64(srcW) * scale), int(float64(srcH) * scale)
}

// transformMatrix builds the column-major model matrix draw_sprite's
// SetMatrixFunc callback is expected to hand back: scale to (cw, ch)
// in pixels, apply the source's own scale and flips, then translate.
// Transform.Rotation is not applied.
func transformMatrix(t source.Transform, cw, ch int) [16]float32 {
	sx := t.ScaleX * float32(cw)
	sy := t.ScaleY * float32(ch)
	if t.FlipH {
		sx = -sx
	}
	if t.FlipV {
		sy = -sy
	}
	return [16]float32{
		sx, 0, 0, 0,
		0, sy, 0, 0,
		0, 0, 1, 0,
		t.PosX, t.PosY, 0, 1,
	}
}
