package frontend

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFT computes fixed-shape magnitude spectrograms.
//
// The signal is cut into frames of frameLength samples every step samples
// (no end padding), each frame is multiplied by a periodic Hann window,
// zero-padded to fftLength and transformed. The magnitudes of the first
// bins are kept. The result is padded with zeros or truncated from the end
// to exactly outFrames × outBins values, row-major by time frame.
//
// STFT reuses internal buffers and is not safe for concurrent use.
type STFT struct {
	frameLength int
	step        int
	fftLength   int
	outFrames   int
	outBins     int

	window []float64
	fft    *fourier.FFT
	seq    []float64
	coeff  []complex128
}

// NewSTFT returns an STFT using the spectral fields of cfg.
func NewSTFT(cfg Config) *STFT {
	s := &STFT{
		frameLength: cfg.STFTFrameLength,
		step:        cfg.STFTFrameStep,
		fftLength:   cfg.FFTLength,
		outFrames:   cfg.SpectrogramFrames,
		outBins:     cfg.SpectrogramBins,
		window:      hannPeriodic(cfg.STFTFrameLength),
		fft:         fourier.NewFFT(cfg.FFTLength),
		seq:         make([]float64, cfg.FFTLength),
		coeff:       make([]complex128, cfg.FFTLength/2+1),
	}
	return s
}

// Shape returns the classifier input shape [1, frames, bins, 1].
func (s *STFT) Shape() []int { return []int{1, s.outFrames, s.outBins, 1} }

// Frames returns the number of STFT frames a signal of n samples yields
// before padding or truncation.
func (s *STFT) Frames(n int) int {
	if n < s.frameLength {
		return 0
	}
	return (n-s.frameLength)/s.step + 1
}

// Spectrogram returns the magnitude spectrogram of signal, shaped to
// outFrames × outBins. Frames and bins past the output shape are never
// computed.
func (s *STFT) Spectrogram(signal []float32) []float32 {
	out := make([]float32, s.outFrames*s.outBins)
	frames := min(s.Frames(len(signal)), s.outFrames)
	bins := min(s.outBins, len(s.coeff))

	for f := range frames {
		start := f * s.step
		for i := range s.frameLength {
			s.seq[i] = float64(signal[start+i]) * s.window[i]
		}
		clear(s.seq[s.frameLength:])

		s.coeff = s.fft.Coefficients(s.coeff, s.seq)
		row := out[f*s.outBins:]
		for b := range bins {
			row[b] = float32(cmplx.Abs(s.coeff[b]))
		}
	}
	return out
}

// hannPeriodic returns the periodic Hann window of length n,
// w[i] = 0.5 − 0.5·cos(2πi/n).
func hannPeriodic(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}
