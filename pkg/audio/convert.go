package audio

import (
	"encoding/binary"
	"math"
)

// Float32ToPCM16 converts normalised float samples to 16-bit signed
// little-endian PCM. Values outside [-1, 1] are clamped; NaN becomes silence.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		var v int16
		switch {
		case s != s: // NaN
			v = 0
		case s >= 1:
			v = math.MaxInt16
		case s <= -1:
			v = math.MinInt16
		case s < 0:
			v = int16(s * 0x8000)
		default:
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM to float samples
// in [-1, 1]. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if v < 0 {
			out[i] = float32(v) / 0x8000
		} else {
			out[i] = float32(v) / 0x7FFF
		}
	}
	return out
}

// DecodeFloat32LE decodes little-endian IEEE float32 samples, the wire format
// browsers produce from an AudioWorklet. A trailing partial sample is ignored.
func DecodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. channels ≤ 1
// returns the input unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// RMS returns the root-mean-square energy of samples, or 0 for an empty
// slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// MinFramesForDuration returns the smallest number of frames of frameSamples
// samples at sampleRate that cover at least ms milliseconds.
func MinFramesForDuration(ms, sampleRate, frameSamples int) int {
	if ms <= 0 || sampleRate <= 0 || frameSamples <= 0 {
		return 0
	}
	samples := int64(ms) * int64(sampleRate)
	perFrame := int64(frameSamples) * 1000
	return int((samples + perFrame - 1) / perFrame)
}
