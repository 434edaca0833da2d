package shazam

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineFrame(freq float64, sampleRate, n int) []float64 {
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return frame
}

func TestSpectrogramShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 256

	frame := sineFrame(440, cfg.SampleRate, cfg.WindowSize)
	spec := Spectrogram([][]float64{frame}, cfg)

	require.Len(t, spec, 1)
	assert.Len(t, spec[0], cfg.FreqBins())
}

func TestSpectrogramPeaksAtToneFrequency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 1024
	cfg.SampleRate = 8000

	freq := 1000.0
	frame := sineFrame(freq, cfg.SampleRate, cfg.WindowSize)
	spec := Spectrogram([][]float64{frame}, cfg)

	expectedBin := int(freq * float64(cfg.WindowSize) / float64(cfg.SampleRate))

	row := spec[0]
	maxBin := 0
	for f := range row {
		if row[f] > row[maxBin] {
			maxBin = f
		}
	}
	assert.InDelta(t, expectedBin, maxBin, 2)
}

func TestHannWindowEndpointsNearZero(t *testing.T) {
	w := hannWindow(64)
	assert.InDelta(t, 0, w[0], 1e-9)
	assert.InDelta(t, 0, w[len(w)-1], 1e-9)
}
