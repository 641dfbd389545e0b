// Package vscale defines the external video-scaler contract named in
// the embeddable surface ("a third-party video scaler") and a default
// implementation.
//
// No scaling/YUV-conversion library appears anywhere in the retrieval
// pack (the closest candidate, go-dsp, is FFT-only; ffmpeg-go shells
// out to a subprocess rather than exposing an in-process scale call).
// The default implementation here is therefore a small hand-rolled
// nearest-neighbour scaler operating on the planar layouts mediatype
// already describes (the requested ScaleType is stored but does not
// change the kernel), kept behind this interface so a real scaler can
// be substituted by the host without touching any caller.
package vscale

import "github.com/richinsley/mixcore/mediatype"

// ScaleType selects the resampling kernel.
type ScaleType int

const (
	ScalePoint ScaleType = iota
	ScaleFastBilinear
	ScaleBilinear
	ScaleBicubic
)

// Info describes one side of a scale/convert operation.
type Info struct {
	Format     mediatype.VideoFormat
	Width      int
	Height     int
	Range      mediatype.RangeType
	Colorspace mediatype.Colorspace
}

// Scaler converts planar video between two Info triples.
type Scaler interface {
	Scale(out [][]byte, outLineSize []int, in [][]byte, inLineSize []int) error
	Close() error
}

// Create builds a Scaler for dst<-src using kind, or nil if the two
// sides already match (pass-through).
func Create(dst, src Info, kind ScaleType) (Scaler, error) {
	if dst == src {
		return nil, nil
	}
	return &defaultScaler{dst: dst, src: src, kind: kind}, nil
}

type defaultScaler struct {
	dst, src Info
	kind     ScaleType
}

// Scale only supports same-format resizes plus basic planar YUV
// 4:2:0 <-> 4:4:4 upsampling; anything else is a caller configuration
// error since the fixed GPU conversion path handles real format
// conversion and this collaborator exists purely for output-side
// resizing of already-converted frames.
func (s *defaultScaler) Scale(out [][]byte, outLineSize []int, in [][]byte, inLineSize []int) error {
	srcLayout := mediatype.DescribeLayout(s.src.Format, s.src.Width, s.src.Height)
	dstLayout := mediatype.DescribeLayout(s.dst.Format, s.dst.Width, s.dst.Height)

	for p := 0; p < srcLayout.Planes && p < len(out); p++ {
		scalePlane(out[p], outLineSize[p], dstLayout.PlaneRows[p],
			in[p], inLineSize[p], srcLayout.PlaneRows[p])
	}
	return nil
}

func (s *defaultScaler) Close() error { return nil }

// scalePlane does a nearest-neighbour resize of one plane; it is
// intentionally simple (see package doc for why no bilinear/bicubic
// ecosystem kernel was available to wire in here).
func scalePlane(dst []byte, dstStride, dstRows int, src []byte, srcStride, srcRows int) {
	if dstRows == 0 || srcRows == 0 || dstStride == 0 || srcStride == 0 {
		return
	}
	for y := 0; y < dstRows; y++ {
		srcY := y * srcRows / dstRows
		srcRow := src[srcY*srcStride : srcY*srcStride+srcStride]
		dstRow := dst[y*dstStride : y*dstStride+dstStride]
		for x := 0; x < dstStride; x++ {
			srcX := x * srcStride / dstStride
			dstRow[x] = srcRow[srcX]
		}
	}
}
