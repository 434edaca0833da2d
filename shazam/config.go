package shazam

// Config controls every tunable parameter in the resampling,
// spectrogram, peak-picking, and hashing pipeline, plus the matcher's
// acceptance thresholds. Every value except those thresholds is part
// of the on-disk contract (spec §6): a catalog built with one Config
// cannot be queried correctly with another, because hashes encode bin
// indices and time deltas that only mean the same thing under
// matching parameters.
type Config struct {
	SampleRate int // canonical analysis rate, R in the spec (22050 Hz)
	WindowSize int // FFT window size in samples, W (4096)
	HopSize    int // samples between successive frames, H (2048)

	FloorDB   float64 // peak floor, dB (-60)
	NeighborT int     // peak neighborhood half-width in time, frames
	NeighborF int     // peak neighborhood half-width in frequency, bins

	MinDT  int // minimum anchor->target time delta, frames
	MaxDT  int // maximum anchor->target time delta, frames
	MaxDF  int // maximum anchor->target frequency delta, bins
	FanOut int // max partners paired per anchor

	MinAligned    int     // matcher: minimum peak histogram bucket to accept
	MinRatio      float64 // matcher: minimum score_ratio to accept
	MinConfidence float64 // matcher: minimum confidence (0-100) to accept
}

// DefaultConfig returns the canonical parameters named in spec §4.1-§4.4.
func DefaultConfig() Config {
	return Config{
		SampleRate: 22050,
		WindowSize: 4096,
		HopSize:    2048,

		FloorDB:   -60,
		NeighborT: 10, // +/-10 frames (21 frames including the center)
		NeighborF: 10, // +/-10 bins (21 bins including the center)

		MinDT:  1,
		MaxDT:  200,
		MaxDF:  200,
		FanOut: 15,

		MinAligned:    5,
		MinRatio:      2.0,
		MinConfidence: 10,
	}
}

// FreqBins returns the number of magnitude bins a spectrogram column
// has under this Config: W/2 + 1.
func (c Config) FreqBins() int {
	return c.WindowSize/2 + 1
}
