package shazam

import (
	"math"

	"github.com/kevigoci/musica/xerrors"
)

// ToMono collapses interleaved PCM with the given channel count down to
// a single mono channel by averaging, the same way the original
// fingerprinter always recorded/converted single-channel audio before
// analysis.
func ToMono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}

	n := len(samples) / channels
	mono := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// LowPassFilter is a first-order RC low-pass filter used ahead of
// downsampling to attenuate content above the target Nyquist frequency.
func LowPassFilter(cutoffHz, sampleRate float64, input []float64) []float64 {
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / sampleRate
	alpha := dt / (rc + dt)

	out := make([]float64, len(input))
	var prev float64
	for i, x := range input {
		if i == 0 {
			out[i] = x * alpha
		} else {
			out[i] = alpha*x + (1-alpha)*prev
		}
		prev = out[i]
	}
	return out
}

// Resample converts mono float64 samples from inRate to outRate by
// linear interpolation. When downsampling (outRate < inRate) it first
// runs LowPassFilter with its cutoff at the new Nyquist frequency; that
// first-order filter is not a sharp band limit, so content above the
// new Nyquist is only partly attenuated and content just below it is
// attenuated as well. No filter is applied when upsampling.
func Resample(samples []float64, inRate, outRate int) ([]float64, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, xerrors.NewResampleError("sample rates must be positive (in=%d out=%d)", inRate, outRate)
	}
	if inRate == outRate {
		return samples, nil
	}

	nyquist := float64(outRate) / 2
	if float64(outRate) < float64(inRate) {
		samples = LowPassFilter(nyquist, float64(inRate), samples)
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float64, outLen)

	for i := range out {
		srcPos := float64(i) * ratio
		lo := int(srcPos)
		hi := lo + 1
		frac := srcPos - float64(lo)

		if hi >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[lo]*(1-frac) + samples[hi]*frac
	}

	return out, nil
}

// Framer buffers incoming mono float64 samples at the canonical rate
// and yields fixed-size, fixed-hop windows as they become available.
// It never emits a partial window during streaming; Flush emits one
// final (possibly zero-padded) window on explicit finalization, the
// way spec §4.1 requires.
type Framer struct {
	windowSize int
	hopSize    int
	buf        []float64
}

// NewFramer creates a Framer for the given window/hop sizes (samples).
func NewFramer(windowSize, hopSize int) *Framer {
	return &Framer{windowSize: windowSize, hopSize: hopSize}
}

// Push appends samples to the internal buffer and returns every
// complete window that can now be formed, advancing by hopSize each
// time and retaining the remainder for the next call.
func (f *Framer) Push(samples []float64) [][]float64 {
	f.buf = append(f.buf, samples...)

	var windows [][]float64
	for len(f.buf) >= f.windowSize {
		w := make([]float64, f.windowSize)
		copy(w, f.buf[:f.windowSize])
		windows = append(windows, w)
		f.buf = f.buf[f.hopSize:]
	}
	return windows
}

// Flush returns one final window built from whatever remains in the
// buffer, zero-padded to windowSize if necessary. Call this only once,
// at stream end; Push should not be called afterward.
func (f *Framer) Flush() []float64 {
	if len(f.buf) == 0 {
		return nil
	}
	w := make([]float64, f.windowSize)
	copy(w, f.buf)
	f.buf = nil
	return w
}
