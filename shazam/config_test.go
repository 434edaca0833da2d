package shazam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigMatchesContract(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, 4096, cfg.WindowSize)
	assert.Equal(t, 2048, cfg.HopSize)
	assert.Equal(t, -60.0, cfg.FloorDB)
	assert.Equal(t, 10, cfg.NeighborT)
	assert.Equal(t, 10, cfg.NeighborF)
	assert.Equal(t, 1, cfg.MinDT)
	assert.Equal(t, 200, cfg.MaxDT)
	assert.Equal(t, 200, cfg.MaxDF)
	assert.Equal(t, 15, cfg.FanOut)
	assert.Equal(t, 5, cfg.MinAligned)
	assert.Equal(t, 2.0, cfg.MinRatio)
	assert.Equal(t, 10.0, cfg.MinConfidence)
}

func TestFreqBins(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.WindowSize/2+1, cfg.FreqBins())
}
