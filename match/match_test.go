package match

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/shazam"
)

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// syntheticPeaks builds a deterministic, dense constellation so
// fingerprinting produces enough pairs to exercise the matcher.
func syntheticPeaks(nFrames int, seed int) []shazam.Peak {
	var peaks []shazam.Peak
	for t := 0; t < nFrames; t++ {
		peaks = append(peaks, shazam.Peak{T: t, F: (t*7 + seed) % 200})
	}
	return peaks
}

func TestMatchAcceptsExactExcerpt(t *testing.T) {
	store := openTestStore(t)
	cfg := shazam.DefaultConfig()

	peaks := syntheticPeaks(300, 1)
	id, err := store.RegisterSong(catalog.Song{Title: "Song", Artist: "Artist", Key: catalog.SongKey("Song", "Artist")})
	require.NoError(t, err)
	require.NoError(t, store.StoreFingerprints(id, shazam.Fingerprint(peaks, cfg)))

	// query is an excerpt starting 50 frames into the song
	excerpt := peaks[50:150]
	shifted := make([]shazam.Peak, len(excerpt))
	for i, p := range excerpt {
		shifted[i] = shazam.Peak{T: p.T - 50, F: p.F}
	}
	queryHashes := FromHashedPeaks(shazam.Fingerprint(shifted, cfg))

	m := New(store, cfg)
	result, err := m.Match(queryHashes)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, id, result.SongID)
	assert.Equal(t, 50, result.Align)
}

func TestMatchRejectsUnrelatedQuery(t *testing.T) {
	store := openTestStore(t)
	cfg := shazam.DefaultConfig()

	peaks := syntheticPeaks(300, 1)
	id, err := store.RegisterSong(catalog.Song{Title: "Song", Artist: "Artist", Key: catalog.SongKey("Song", "Artist")})
	require.NoError(t, err)
	require.NoError(t, store.StoreFingerprints(id, shazam.Fingerprint(peaks, cfg)))

	// syntheticPeaks with another seed is only a time-shifted copy of
	// the same sequence (7 is invertible mod 200), so the unrelated
	// query uses a different frequency stride instead.
	var unrelated []shazam.Peak
	for t := 0; t < 100; t++ {
		unrelated = append(unrelated, shazam.Peak{T: t, F: (t*13 + 5) % 200})
	}
	queryHashes := FromHashedPeaks(shazam.Fingerprint(unrelated, cfg))

	m := New(store, cfg)
	result, err := m.Match(queryHashes)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
}

func TestMatchEmptyQueryReturnsZeroResult(t *testing.T) {
	store := openTestStore(t)
	m := New(store, shazam.DefaultConfig())

	result, err := m.Match(nil)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
}

func TestMatchNoPostingsFound(t *testing.T) {
	store := openTestStore(t)
	cfg := shazam.DefaultConfig()
	m := New(store, cfg)

	queries := FromHashedPeaks(shazam.Fingerprint(syntheticPeaks(50, 3), cfg))
	result, err := m.Match(queries)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Zero(t, result.SongID)
}
