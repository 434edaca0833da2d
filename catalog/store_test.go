package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevigoci/musica/shazam"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newSong(title, artist string) Song {
	return Song{Title: title, Artist: artist, Key: SongKey(title, artist)}
}

func TestRegisterAndGetSong(t *testing.T) {
	store := openTestStore(t)

	id, err := store.RegisterSong(newSong("Test Song", "Test Artist"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	song, err := store.GetSong(id)
	require.NoError(t, err)
	assert.Equal(t, "Test Song", song.Title)
	assert.Equal(t, "Test Artist", song.Artist)
}

func TestRegisterDuplicateKeyFails(t *testing.T) {
	store := openTestStore(t)

	_, err := store.RegisterSong(newSong("Dup", "Artist"))
	require.NoError(t, err)

	_, err = store.RegisterSong(newSong("Dup", "Artist"))
	assert.Error(t, err)
}

func TestAddSongPersistsSongAndFingerprintsTogether(t *testing.T) {
	store := openTestStore(t)

	h1 := shazam.HashPair(shazam.Peak{T: 0, F: 10}, shazam.Peak{T: 5, F: 20})
	h2 := shazam.HashPair(shazam.Peak{T: 1, F: 11}, shazam.Peak{T: 8, F: 22})

	id, err := store.AddSong(newSong("Atomic", "Artist"), []shazam.HashedPeak{
		{Hash: h1, AnchorTime: 0},
		{Hash: h2, AnchorTime: 1},
	})
	require.NoError(t, err)

	song, err := store.GetSong(id)
	require.NoError(t, err)
	assert.Equal(t, "Atomic", song.Title)

	postings, err := store.Lookup([]shazam.Hash{h1, h2})
	require.NoError(t, err)
	assert.Len(t, postings[h1], 1)
	assert.Len(t, postings[h2], 1)
}

func TestAddSongDuplicateKeyPersistsNoFingerprints(t *testing.T) {
	store := openTestStore(t)

	song := newSong("Dup", "Artist")
	_, err := store.AddSong(song, nil)
	require.NoError(t, err)

	h := shazam.HashPair(shazam.Peak{T: 0, F: 10}, shazam.Peak{T: 5, F: 20})
	_, err = store.AddSong(song, []shazam.HashedPeak{{Hash: h, AnchorTime: 0}})
	require.Error(t, err)

	// the failed duplicate insert must not have left behind a
	// fingerprint row for a song that was never committed.
	postings, err := store.Lookup([]shazam.Hash{h})
	require.NoError(t, err)
	assert.Empty(t, postings[h])
}

func TestGetSongByKeyMissing(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.GetSongByKey(SongKey("nope", "nobody"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreAndLookupFingerprints(t *testing.T) {
	store := openTestStore(t)

	id, err := store.RegisterSong(newSong("Song", "Artist"))
	require.NoError(t, err)

	h1 := shazam.HashPair(shazam.Peak{T: 0, F: 10}, shazam.Peak{T: 5, F: 20})
	h2 := shazam.HashPair(shazam.Peak{T: 1, F: 11}, shazam.Peak{T: 8, F: 22})

	err = store.StoreFingerprints(id, []shazam.HashedPeak{
		{Hash: h1, AnchorTime: 0},
		{Hash: h2, AnchorTime: 1},
	})
	require.NoError(t, err)

	postings, err := store.Lookup([]shazam.Hash{h1, h2})
	require.NoError(t, err)
	assert.Len(t, postings[h1], 1)
	assert.Len(t, postings[h2], 1)
	assert.Equal(t, id, postings[h1][0].SongID)
}

func TestDeleteSongCascadesFingerprints(t *testing.T) {
	store := openTestStore(t)

	id, err := store.RegisterSong(newSong("Song", "Artist"))
	require.NoError(t, err)

	h := shazam.HashPair(shazam.Peak{T: 0, F: 10}, shazam.Peak{T: 5, F: 20})
	require.NoError(t, store.StoreFingerprints(id, []shazam.HashedPeak{{Hash: h, AnchorTime: 0}}))

	require.NoError(t, store.DeleteSong(id))

	postings, err := store.Lookup([]shazam.Hash{h})
	require.NoError(t, err)
	assert.Empty(t, postings[h])

	_, err = store.GetSong(id)
	assert.Error(t, err)
}

func TestListSongsAndStats(t *testing.T) {
	store := openTestStore(t)

	_, err := store.RegisterSong(newSong("A", "X"))
	require.NoError(t, err)
	_, err = store.RegisterSong(newSong("B", "Y"))
	require.NoError(t, err)

	songs, err := store.ListSongs()
	require.NoError(t, err)
	assert.Len(t, songs, 2)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSongs)
}

func TestLookupBatchesAcrossManyHashes(t *testing.T) {
	store := openTestStore(t)

	id, err := store.RegisterSong(newSong("Long", "Song"))
	require.NoError(t, err)

	var hashed []shazam.HashedPeak
	var hashes []shazam.Hash
	for i := 0; i < 1200; i++ {
		h := shazam.HashPair(shazam.Peak{T: i, F: i}, shazam.Peak{T: i + 5, F: i + 3})
		hashed = append(hashed, shazam.HashedPeak{Hash: h, AnchorTime: i})
		hashes = append(hashes, h)
	}
	require.NoError(t, store.StoreFingerprints(id, hashed))

	postings, err := store.Lookup(hashes)
	require.NoError(t, err)
	assert.Len(t, postings, 1200)
}
