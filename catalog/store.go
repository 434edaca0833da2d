// Package catalog is the fingerprint database: a SQLite-backed store
// holding registered songs and the fingerprint hashes derived from
// them, with the hash -> (song, anchor time) postings a matcher needs
// to answer "what is this clip" queries.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/kevigoci/musica/shazam"
	"github.com/kevigoci/musica/xerrors"
)

// Song is one registered catalog entry. Metadata is an opaque JSON
// blob (artwork URL, source tags, anything a caller wants attached)
// that the store never interprets itself.
type Song struct {
	ID       uint32
	Title    string
	Artist   string
	Album    string
	Duration float64 // seconds
	Path     string
	Metadata json.RawMessage // nil if absent
	Key      string          // normalized title+artist, used to detect duplicates
}

// MetadataField reads a single field out of a song's opaque Metadata
// blob without unmarshaling the whole thing, for callers that only
// need e.g. an artwork URL.
func (s Song) MetadataField(path string) string {
	if len(s.Metadata) == 0 {
		return ""
	}
	return gjson.GetBytes(s.Metadata, path).String()
}

// Posting is one hash occurrence: the song and anchor time-bin it was
// derived from, as returned by a catalog lookup.
type Posting struct {
	SongID     uint32
	AnchorTime int
}

// Store is a SQLite-backed fingerprint catalog. It is safe for
// concurrent use; database/sql pools connections internally and
// writes are serialized through single transactions.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	title         TEXT NOT NULL,
	artist        TEXT NOT NULL,
	album         TEXT NOT NULL DEFAULT '',
	duration      REAL NOT NULL DEFAULT 0,
	path          TEXT NOT NULL DEFAULT '',
	metadata_blob TEXT NOT NULL DEFAULT '',
	key           TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS fingerprints (
	hash        TEXT    NOT NULL,
	song_id     INTEGER NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
	anchor_time INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_hash ON fingerprints(hash);
CREATE INDEX IF NOT EXISTS idx_fingerprints_song_id ON fingerprints(song_id);
`

// Open creates or opens a SQLite database at path, enables foreign key
// enforcement and WAL mode (so ingestion writes don't block concurrent
// query reads), and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Catalog, fmt.Errorf("open %s: %w", path, err))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.Catalog, fmt.Errorf("create schema: %w", err))
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const songColumns = `id, title, artist, album, duration, path, metadata_blob, key`

func scanSong(row interface{ Scan(...any) error }) (Song, error) {
	var song Song
	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.Duration, &song.Path, &song.Metadata, &song.Key)
	return song, err
}

// RegisterSong inserts a new song, returning its assigned ID. It fails
// with a CatalogError if key already exists, so callers can detect
// duplicate ingestion before spending time fingerprinting.
func (s *Store) RegisterSong(song Song) (uint32, error) {
	metadata := song.Metadata
	if metadata == nil {
		metadata = json.RawMessage{}
	}
	res, err := s.db.Exec(
		`INSERT INTO songs (title, artist, album, duration, path, metadata_blob, key) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		song.Title, song.Artist, song.Album, song.Duration, song.Path, metadata, song.Key,
	)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.Catalog, fmt.Errorf("register song %q: %w", song.Title, err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.Catalog, err)
	}
	return uint32(id), nil
}

// AddSong registers song and stores every one of its fingerprint
// hashes in a single transaction, per spec §4.5: a song is either
// fully indexed or not indexed at all. It fails with a CatalogError
// if song.Key already exists.
func (s *Store) AddSong(song Song, hashed []shazam.HashedPeak) (uint32, error) {
	metadata := song.Metadata
	if metadata == nil {
		metadata = json.RawMessage{}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.Catalog, err)
	}

	res, err := tx.Exec(
		`INSERT INTO songs (title, artist, album, duration, path, metadata_blob, key) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		song.Title, song.Artist, song.Album, song.Duration, song.Path, metadata, song.Key,
	)
	if err != nil {
		tx.Rollback()
		return 0, xerrors.Wrap(xerrors.Catalog, fmt.Errorf("register song %q: %w", song.Title, err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, xerrors.Wrap(xerrors.Catalog, err)
	}
	songID := uint32(id)

	if len(hashed) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO fingerprints (hash, song_id, anchor_time) VALUES (?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return 0, xerrors.Wrap(xerrors.Catalog, err)
		}
		for _, hp := range hashed {
			if _, err := stmt.Exec(hp.Hash.String(), songID, hp.AnchorTime); err != nil {
				stmt.Close()
				tx.Rollback()
				return 0, xerrors.Wrap(xerrors.Catalog, fmt.Errorf("insert fingerprint: %w", err))
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return 0, xerrors.Wrap(xerrors.Catalog, err)
	}
	return songID, nil
}

// GetSongByKey returns the song registered under key, if any.
func (s *Store) GetSongByKey(key string) (Song, bool, error) {
	row := s.db.QueryRow(`SELECT `+songColumns+` FROM songs WHERE key = ?`, key)
	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return Song{}, false, nil
	}
	if err != nil {
		return Song{}, false, xerrors.Wrap(xerrors.Catalog, err)
	}
	return song, true, nil
}

// GetSong returns the song with the given ID.
func (s *Store) GetSong(id uint32) (Song, error) {
	row := s.db.QueryRow(`SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return Song{}, xerrors.NewCatalogError("no song with id %d", id)
	}
	if err != nil {
		return Song{}, xerrors.Wrap(xerrors.Catalog, err)
	}
	return song, nil
}

// ListSongs returns every registered song, ordered by ID.
func (s *Store) ListSongs() ([]Song, error) {
	rows, err := s.db.Query(`SELECT ` + songColumns + ` FROM songs ORDER BY id`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Catalog, err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Catalog, err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// DeleteSong removes a song and, via the fingerprints table's cascade
// delete, every fingerprint hash derived from it.
func (s *Store) DeleteSong(id uint32) error {
	_, err := s.db.Exec(`DELETE FROM songs WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.Catalog, fmt.Errorf("delete song %d: %w", id, err))
	}
	return nil
}

// StoreFingerprints persists every hashed peak for songID in a single
// transaction, so a mid-ingestion failure leaves no partial
// fingerprint set behind.
func (s *Store) StoreFingerprints(songID uint32, hashed []shazam.HashedPeak) error {
	if len(hashed) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return xerrors.Wrap(xerrors.Catalog, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO fingerprints (hash, song_id, anchor_time) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return xerrors.Wrap(xerrors.Catalog, err)
	}
	defer stmt.Close()

	for _, hp := range hashed {
		if _, err := stmt.Exec(hp.Hash.String(), songID, hp.AnchorTime); err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.Catalog, fmt.Errorf("insert fingerprint: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.Catalog, err)
	}
	return nil
}

// lookupBatchSize caps how many hashes go into a single SQL IN (...)
// clause; SQLite's default compile-time limit on query variables is
// 999, and batching keeps well clear of it for wide queries.
const lookupBatchSize = 500

// Lookup resolves every hash in hashes to the postings (song,
// anchor-time pairs) that share that hash, batching the underlying
// queries so an arbitrarily large query fingerprint set never builds
// one unbounded SQL statement.
func (s *Store) Lookup(hashes []shazam.Hash) (map[shazam.Hash][]Posting, error) {
	result := make(map[shazam.Hash][]Posting, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	for start := 0; start < len(hashes); start += lookupBatchSize {
		end := start + lookupBatchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = strings.TrimSuffix(placeholders, ",")

		args := make([]any, len(batch))
		for i, h := range batch {
			args[i] = h.String()
		}

		rows, err := s.db.Query(
			fmt.Sprintf(`SELECT hash, song_id, anchor_time FROM fingerprints WHERE hash IN (%s)`, placeholders),
			args...,
		)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Catalog, err)
		}

		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var hashStr string
				var p Posting
				if err := rows.Scan(&hashStr, &p.SongID, &p.AnchorTime); err != nil {
					return err
				}
				h, err := shazam.ParseHash(hashStr)
				if err != nil {
					continue
				}
				result[h] = append(result[h], p)
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Catalog, err)
		}
	}

	return result, nil
}

// Stats summarizes catalog size.
type Stats struct {
	TotalSongs        int
	TotalFingerprints int
}

// GetStats reports the number of registered songs and stored
// fingerprints.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM songs`).Scan(&stats.TotalSongs); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.Catalog, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fingerprints`).Scan(&stats.TotalFingerprints); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.Catalog, err)
	}
	return stats, nil
}

// SongKey builds the normalized duplicate-detection key for a
// title/artist pair.
func SongKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "::" + strings.ToLower(strings.TrimSpace(artist))
}
