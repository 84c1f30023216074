package audio

import (
	"encoding/binary"
	"math"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	wavHeaderSize  = 44
)

// EncodeWAV wraps mono float32 samples in a RIFF/WAVE container using the
// IEEE float format (32 bits per sample).
func EncodeWAV(samples []float32, sampleRate int) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return wavContainer(data, wavFormatFloat, sampleRate, 1, 32)
}

// EncodeWAVPCM16 wraps mono float32 samples in a RIFF/WAVE container as
// 16-bit signed PCM. Samples outside [-1, 1] are clamped.
func EncodeWAVPCM16(samples []float32, sampleRate int) []byte {
	return wavContainer(Float32ToPCM16(samples), wavFormatPCM, sampleRate, 1, 16)
}

// WrapPCM16 wraps raw 16-bit little-endian PCM in a RIFF/WAVE container.
func WrapPCM16(pcm []byte, sampleRate, channels int) []byte {
	return wavContainer(pcm, wavFormatPCM, sampleRate, channels, 16)
}

func wavContainer(data []byte, format uint16, sampleRate, channels, bps int) []byte {
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(data)

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], format)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[wavHeaderSize:], data)

	return buf
}
