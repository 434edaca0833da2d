package stream

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/match"
	"github.com/kevigoci/musica/shazam"
)

func testTiming() Timing {
	t := DefaultTiming()
	t.MinQueryS = 0.1
	t.AttemptEveryS = 0
	t.MaxQueryS = 0.5
	return t
}

func sineSamples(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestSessionConfigureTransitionsToListening(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	s := NewSession(store, shazam.DefaultConfig(), DefaultTiming(), NewPool(1))
	assert.Equal(t, Init, s.State())

	require.NoError(t, s.Configure(22050))
	assert.Equal(t, Listening, s.State())
}

func TestSessionConfigureRejectsInvalidRate(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	s := NewSession(store, shazam.DefaultConfig(), DefaultTiming(), NewPool(1))
	err := s.Configure(0)
	assert.Error(t, err)
	assert.Equal(t, TerminalError, s.State())
}

func TestSessionIngestAccumulatesBuffer(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	cfg := shazam.DefaultConfig()
	s := NewSession(store, cfg, DefaultTiming(), NewPool(1))
	require.NoError(t, s.Configure(cfg.SampleRate))

	samples := sineSamples(440, cfg.SampleRate, cfg.SampleRate) // 1 second
	require.NoError(t, s.Ingest(samples))

	assert.InDelta(t, 1.0, s.BufferedSeconds(), 0.05)
}

func TestSessionIngestSlidingWindowDropsOldest(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	cfg := shazam.DefaultConfig()
	timing := testTiming() // MaxQueryS = 0.5
	s := NewSession(store, cfg, timing, NewPool(1))
	require.NoError(t, s.Configure(cfg.SampleRate))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Ingest(sineSamples(440, cfg.SampleRate, cfg.SampleRate/2)))
	}

	assert.LessOrEqual(t, s.BufferedSeconds(), timing.MaxQueryS+0.05)
}

func TestSessionShouldAttemptRespectsMinQuery(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	cfg := shazam.DefaultConfig()
	timing := DefaultTiming()
	s := NewSession(store, cfg, timing, NewPool(1))
	require.NoError(t, s.Configure(cfg.SampleRate))

	assert.False(t, s.ShouldAttempt())

	require.NoError(t, s.Ingest(sineSamples(440, cfg.SampleRate, cfg.SampleRate/10)))
	assert.False(t, s.ShouldAttempt(), "below MinQueryS should not trigger an attempt")
}

func TestSessionAttemptAcceptsMatch(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	cfg := shazam.DefaultConfig()

	// a 3s sine sweep gives the spectrogram rich, moving spectral
	// content across several frames, the same shape as the sine-sweep
	// scenario the matcher's self-recognition property is checked
	// against.
	fullSong := sineSweep(cfg.SampleRate, 3.0, 200, 4000)

	framer := shazam.NewFramer(cfg.WindowSize, cfg.HopSize)
	songFrames := framer.Push(fullSong)
	if tail := framer.Flush(); tail != nil {
		songFrames = append(songFrames, tail)
	}
	songPeaks := shazam.ExtractPeaks(shazam.Spectrogram(songFrames, cfg), cfg)
	require.NotEmpty(t, songPeaks)

	songID, err := store.RegisterSong(catalog.Song{Title: "S", Artist: "A", Key: catalog.SongKey("S", "A")})
	require.NoError(t, err)
	require.NoError(t, store.StoreFingerprints(songID, shazam.Fingerprint(songPeaks, cfg)))

	timing := DefaultTiming()
	timing.MinQueryS = 0.1
	timing.AttemptEveryS = 0
	s := NewSession(store, cfg, timing, NewPool(1))
	require.NoError(t, s.Configure(cfg.SampleRate))

	// query with the same excerpt that seeded the catalog; self
	// recognition must accept this.
	require.NoError(t, s.Ingest(fullSong))

	m := match.New(store, cfg)
	outcome, err := s.Attempt(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, Matched, outcome.State)
	assert.Equal(t, songID, outcome.Song.ID)
}

// sineSweep generates a linear frequency sweep from startHz to endHz
// over durationS seconds at sampleRate, giving a spectrogram with
// plenty of time-varying peaks to fingerprint.
func sineSweep(sampleRate int, durationS, startHz, endHz float64) []float64 {
	n := int(durationS * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		frac := float64(i) / float64(n)
		freq := startHz + frac*(endHz-startHz)
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestSessionStopMarksTerminal(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	s := NewSession(store, shazam.DefaultConfig(), DefaultTiming(), NewPool(1))
	require.NoError(t, s.Configure(22050))
	s.Stop()
	assert.True(t, s.State().Terminal())
}

func TestSessionAttemptOnSilenceReachesNoMatchAtMaxQuery(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	cfg := shazam.DefaultConfig()
	timing := DefaultTiming()
	timing.MinQueryS = 0.1
	timing.AttemptEveryS = 0
	timing.MaxQueryS = 0.5

	s := NewSession(store, cfg, timing, NewPool(1))
	require.NoError(t, s.Configure(cfg.SampleRate))

	maxSamples := int(timing.MaxQueryS * float64(cfg.SampleRate))
	silence := make([]float64, maxSamples+cfg.HopSize)
	require.NoError(t, s.Ingest(silence))

	// silence has no extractable peaks; this must degrade to a
	// well-defined no_match once the buffer fills MaxQueryS, not loop
	// forever or surface as an error.
	outcome, err := s.Attempt(context.Background(), match.New(store, cfg))
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, NoMatch, outcome.State)
}

func TestSessionIdleExpired(t *testing.T) {
	store, _ := catalog.Open(filepath.Join(t.TempDir(), "c.db"))
	defer store.Close()

	timing := DefaultTiming()
	timing.IdleTimeout = time.Millisecond
	s := NewSession(store, shazam.DefaultConfig(), timing, NewPool(1))
	require.NoError(t, s.Configure(22050))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, s.IdleExpired())
}
