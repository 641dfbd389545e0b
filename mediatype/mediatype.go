// Package mediatype describes the fixed set of audio/video wire formats
// the mixing core understands and the per-format layout rules derived
// from them (plane counts, conversion shader selection).
package mediatype

// VideoFormat enumerates the pixel formats sources may present and
// outputs may request.
type VideoFormat int

const (
	VideoFormatNone VideoFormat = iota
	VideoFormatI420
	VideoFormatNV12
	VideoFormatI444
	VideoFormatI422
	VideoFormatYVYU
	VideoFormatYUY2
	VideoFormatUYVY
	VideoFormatY800
	VideoFormatRGBA
	VideoFormatBGRA
	VideoFormatBGRX
	VideoFormatBGR3
	VideoFormatI40A
	VideoFormatI42A
	VideoFormatYUVA
	VideoFormatAYUV
)

// MaxAVPlanes bounds the number of planes any video frame may carry.
const MaxAVPlanes = 8

// AudioFormat enumerates sample encodings.
type AudioFormat int

const (
	AudioFormatUnknown AudioFormat = iota
	AudioFormatU8
	AudioFormatS16
	AudioFormatS32
	AudioFormatF32
	AudioFormatU8Planar
	AudioFormatS16Planar
	AudioFormatS32Planar
	AudioFormatF32Planar
)

func (f AudioFormat) Planar() bool {
	switch f {
	case AudioFormatU8Planar, AudioFormatS16Planar, AudioFormatS32Planar, AudioFormatF32Planar:
		return true
	default:
		return false
	}
}

// SpeakerLayout enumerates supported channel layouts.
type SpeakerLayout int

const (
	SpeakersUnknown SpeakerLayout = iota
	SpeakersMono
	SpeakersStereo
	Speakers2Point1
	Speakers4Point0
	Speakers4Point1
	Speakers5Point1
	Speakers7Point1
)

// MaxAudioChannels bounds per-source channel count.
const MaxAudioChannels = 8

// Channels returns the channel count implied by a speaker layout.
func (s SpeakerLayout) Channels() int {
	switch s {
	case SpeakersMono:
		return 1
	case SpeakersStereo:
		return 2
	case Speakers2Point1:
		return 3
	case Speakers4Point0:
		return 4
	case Speakers4Point1:
		return 5
	case Speakers5Point1:
		return 6
	case Speakers7Point1:
		return 8
	default:
		return 0
	}
}

// Colorspace selects the YUV<->RGB conversion matrix.
type Colorspace int

const (
	ColorspaceDefault Colorspace = iota // 601
	Colorspace601
	Colorspace709
)

// RangeType selects full vs partial (studio) pixel range.
type RangeType int

const (
	RangeDefault RangeType = iota // partial
	RangeFull
	RangePartial
)

// Layout describes the per-plane geometry of a video format at a given
// width/height, used to size textures and CPU buffers alike.
type Layout struct {
	Planes    int
	LineSize  [MaxAVPlanes]int
	PlaneRows [MaxAVPlanes]int
}

// DescribeLayout is the single tagged-variant table the format size
// computations route through, rather than duplicating a switch per
// caller (compositor texture sizing and download buffer, the default
// scaler).
func DescribeLayout(format VideoFormat, width, height int) Layout {
	var l Layout
	switch format {
	case VideoFormatI420:
		l.Planes = 3
		l.LineSize[0] = width
		l.PlaneRows[0] = height
		l.LineSize[1] = width / 2
		l.PlaneRows[1] = height / 2
		l.LineSize[2] = width / 2
		l.PlaneRows[2] = height / 2
	case VideoFormatNV12:
		l.Planes = 2
		l.LineSize[0] = width
		l.PlaneRows[0] = height
		l.LineSize[1] = width
		l.PlaneRows[1] = height / 2
	case VideoFormatI444:
		l.Planes = 3
		for i := 0; i < 3; i++ {
			l.LineSize[i] = width
			l.PlaneRows[i] = height
		}
	case VideoFormatI422:
		l.Planes = 3
		l.LineSize[0] = width
		l.PlaneRows[0] = height
		l.LineSize[1] = width / 2
		l.PlaneRows[1] = height
		l.LineSize[2] = width / 2
		l.PlaneRows[2] = height
	case VideoFormatI40A:
		l.Planes = 4
		l.LineSize[0] = width
		l.PlaneRows[0] = height
		l.LineSize[1] = width / 2
		l.PlaneRows[1] = height / 2
		l.LineSize[2] = width / 2
		l.PlaneRows[2] = height / 2
		l.LineSize[3] = width
		l.PlaneRows[3] = height
	case VideoFormatI42A:
		l.Planes = 4
		for i := 0; i < 4; i++ {
			if i == 0 || i == 3 {
				l.LineSize[i] = width
			} else {
				l.LineSize[i] = width / 2
			}
			l.PlaneRows[i] = height
		}
	case VideoFormatYUVA:
		l.Planes = 4
		for i := 0; i < 4; i++ {
			l.LineSize[i] = width
			l.PlaneRows[i] = height
		}
	case VideoFormatYVYU, VideoFormatYUY2, VideoFormatUYVY:
		l.Planes = 1
		l.LineSize[0] = width * 2
		l.PlaneRows[0] = height
	case VideoFormatY800:
		l.Planes = 1
		l.LineSize[0] = width
		l.PlaneRows[0] = height
	case VideoFormatBGR3:
		l.Planes = 1
		l.LineSize[0] = width * 3
		l.PlaneRows[0] = height
	case VideoFormatRGBA, VideoFormatBGRA, VideoFormatBGRX, VideoFormatAYUV:
		l.Planes = 1
		l.LineSize[0] = width * 4
		l.PlaneRows[0] = height
	}
	return l
}

// ConversionTechnique picks the fixed conversion-shader name for a
// format and range, the single table the compositor's GPU upload path
// consults instead of re-deriving the mapping per call site.
func ConversionTechnique(format VideoFormat, fullRange bool) string {
	switch format {
	case VideoFormatUYVY:
		return "Convert_UYVY_Reverse"
	case VideoFormatYUY2:
		return "Convert_YUY2_Reverse"
	case VideoFormatYVYU:
		return "Convert_YVYU_Reverse"
	case VideoFormatI420:
		return "Convert_I420_Reverse"
	case VideoFormatNV12:
		return "Convert_NV12_Reverse"
	case VideoFormatI444:
		return "Convert_I444_Reverse"
	case VideoFormatI422:
		return "Convert_I422_Reverse"
	case VideoFormatI40A:
		return "Convert_I40A_Reverse"
	case VideoFormatI42A:
		return "Convert_I42A_Reverse"
	case VideoFormatYUVA:
		return "Convert_YUVA_Reverse"
	case VideoFormatAYUV:
		return "Convert_AYUV_Reverse"
	case VideoFormatY800:
		if fullRange {
			return "Convert_Y800_Full"
		}
		return "Convert_Y800_Limited"
	case VideoFormatBGR3:
		if fullRange {
			return "Convert_BGR3_Full"
		}
		return "Convert_BGR3_Limited"
	case VideoFormatRGBA, VideoFormatBGRA, VideoFormatBGRX:
		if fullRange {
			return "Default_Draw"
		}
		return "Convert_RGB_Limited"
	default:
		return "Default_Draw"
	}
}

// IsYUV reports whether a format goes through a Convert_* pass in the
// compositor: every format except RGBA, BGRA, BGRX and None, so Y800
// and BGR3 count as well as the chroma-carrying formats.
func IsYUV(format VideoFormat) bool {
	switch format {
	case VideoFormatRGBA, VideoFormatBGRA, VideoFormatBGRX, VideoFormatNone:
		return false
	default:
		return true
	}
}

// HasAlpha reports whether format carries a fourth alpha plane the
// Convert_* shaders should sample instead of defaulting to opaque.
func HasAlpha(format VideoFormat) bool {
	switch format {
	case VideoFormatI40A, VideoFormatI42A, VideoFormatYUVA, VideoFormatAYUV:
		return true
	default:
		return false
	}
}

// PlaneCount is the chroma-plane count the Convert_* shaders branch on
// (1 for Y800, BGR3 and the packed 4:2:2 formats YVYU/YUY2/UYVY, 2 for
// NV12's interleaved chroma, 3 otherwise, AYUV included), independent of DescribeLayout's
// CPU-buffer plane count so packed formats still report their
// effective sampling plane count to the shader.
func PlaneCount(format VideoFormat) int {
	switch format {
	case VideoFormatY800, VideoFormatYVYU, VideoFormatYUY2, VideoFormatUYVY, VideoFormatBGR3:
		return 1
	case VideoFormatNV12:
		return 2
	default:
		return 3
	}
}

// ColorMatrix returns the fixed YUV->RGBA expansion matrix (column
// major, matching u_color_matrix's GLSL layout) for a colorspace.
// Coefficients are the standard BT.601/BT.709 Y'CbCr->RGB constants.
func ColorMatrix(cs Colorspace) [16]float32 {
	switch cs {
	case Colorspace709:
		return [16]float32{
			1, 1, 1, 0,
			0, -0.21482, 2.12798, 0,
			1.28033, -0.38059, 0, 0,
			-0.640165, 0.297705, -1.063990, 1,
		}
	default: // 601
		return [16]float32{
			1, 1, 1, 0,
			0, -0.39465, 2.03211, 0,
			1.13983, -0.58060, 0, 0,
			-0.569915, 0.487625, -1.016055, 1,
		}
	}
}

// RangeMinMax returns the per-channel black/white levels the
// conversion shader clamps against before the final RGBA write.
func RangeMinMax(full bool) (min, max [3]float32) {
	if full {
		return [3]float32{0, 0, 0}, [3]float32{1, 1, 1}
	}
	return [3]float32{16.0 / 255, 16.0 / 255, 16.0 / 255}, [3]float32{235.0 / 255, 240.0 / 255, 240.0 / 255}
}
