package shazam

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const dbFloorEpsilon = 1e-10

// hannWindow returns a Hann window of the given length.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		theta := 2 * math.Pi * float64(i) / float64(n-1)
		w[i] = 0.5 - 0.5*math.Cos(theta)
	}
	return w
}

// Spectrogram computes the magnitude-in-dB STFT of frames already cut
// by a Framer: one Hann-windowed real FFT per frame, keeping the first
// W/2+1 bins (spec §4.2). S[t][f] = 20*log10(max(|X|, eps)).
func Spectrogram(frames [][]float64, cfg Config) [][]float64 {
	window := hannWindow(cfg.WindowSize)
	nBins := cfg.FreqBins()

	spec := make([][]float64, len(frames))
	for t, frame := range frames {
		windowed := make([]float64, len(frame))
		for i, s := range frame {
			windowed[i] = s * window[i]
		}

		spectrum := fft.FFTReal(windowed)

		row := make([]float64, nBins)
		for f := 0; f < nBins; f++ {
			mag := cmplx.Abs(spectrum[f])
			row[f] = 20 * math.Log10(math.Max(mag, dbFloorEpsilon))
		}
		spec[t] = row
	}
	return spec
}
