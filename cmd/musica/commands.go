package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/match"
	"github.com/kevigoci/musica/shazam"
	"github.com/kevigoci/musica/wav"
	"github.com/kevigoci/musica/xerrors"
)

var fpConfig = shazam.DefaultConfig()

// find fingerprints path and reports the best catalog match, the CLI
// equivalent of a one-shot /api/recognize call.
func find(store *catalog.Store, path string) {
	hashed, _, err := fingerprintFile(path, fpConfig)
	if xerrors.Is(err, xerrors.EmptyFingerprint) {
		// a silent or featureless clip is a no-match, not a failure (spec §7).
		color.Yellow("no match found (no peaks in %s)", path)
		return
	}
	if err != nil {
		color.Red("error fingerprinting %s: %v", path, err)
		return
	}

	m := match.New(store, fpConfig)
	result, err := m.Match(match.FromHashedPeaks(hashed))
	if err != nil {
		color.Red("error matching: %v", err)
		return
	}

	if !result.Accepted {
		color.Yellow("no match found (peak=%d ratio=%.2f confidence=%.1f)", result.Peak, result.ScoreRatio, result.Confidence)
		return
	}

	song, err := store.GetSong(result.SongID)
	if err != nil {
		color.Red("matched song %d but failed to load it: %v", result.SongID, err)
		return
	}

	color.Green("match: %s by %s (confidence %.1f%%, offset %d frames)", song.Title, song.Artist, result.Confidence, result.Align)
}

// save registers and fingerprints path, or every audio file under it
// if path is a directory, fanning out across a small worker pool the
// same way the teacher's processFilesConcurrently does.
func save(store *catalog.Store, path string, force bool) {
	info, err := os.Stat(path)
	if err != nil {
		color.Red("error: %v", err)
		return
	}

	if !info.IsDir() {
		if err := saveEntry(store, path, force); err != nil {
			color.Red("error saving %s: %v", path, err)
		}
		return
	}

	var filePaths []string
	filepath.Walk(path, func(fp string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			filePaths = append(filePaths, fp)
		}
		return nil
	})

	saveFilesConcurrently(store, filePaths, force)
}

func saveFilesConcurrently(store *catalog.Store, filePaths []string, force bool) {
	numFiles := len(filePaths)
	if numFiles == 0 {
		return
	}

	maxWorkers := runtime.NumCPU() / 2
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if numFiles < maxWorkers {
		maxWorkers = numFiles
	}

	jobs := make(chan string, numFiles)
	results := make(chan error, numFiles)

	for w := 0; w < maxWorkers; w++ {
		go func() {
			for fp := range jobs {
				results <- saveEntry(store, fp, force)
			}
		}()
	}
	for _, fp := range filePaths {
		jobs <- fp
	}
	close(jobs)

	successCount, errorCount := 0, 0
	for i := 0; i < numFiles; i++ {
		if err := <-results; err != nil {
			color.Red("error: %v", err)
			errorCount++
		} else {
			successCount++
		}
	}

	fmt.Printf("\nprocessed %d files: %d successful, %d failed\n", numFiles, successCount, errorCount)
}

func saveEntry(store *catalog.Store, path string, force bool) error {
	meta, metaErr := wav.GetMetadata(path)
	title, artist := "", ""
	if metaErr == nil {
		title, artist = meta.Title, meta.Artist
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if artist == "" {
		if !force {
			return fmt.Errorf("no artist tag found for %s (use -f to ingest anyway)", path)
		}
		artist = "unknown"
	}

	key := catalog.SongKey(title, artist)
	if _, exists, _ := store.GetSongByKey(key); exists {
		return fmt.Errorf("'%s' by '%s' already exists", title, artist)
	}

	song, fpCount, err := registerAndFingerprint(store, fpConfig, catalog.Song{
		Title: title, Artist: artist, Path: path, Key: key,
	}, path)
	if err != nil {
		return err
	}

	color.Green("indexed '%s' by '%s' (%d fingerprints)", song.Title, song.Artist, fpCount)
	return nil
}

// erase clears the catalog and, if all is set, every audio file under
// songsDir.
func erase(store *catalog.Store, songsDir string, all bool) {
	songs, err := store.ListSongs()
	if err != nil {
		color.Red("error listing songs: %v", err)
		return
	}
	for _, s := range songs {
		if err := store.DeleteSong(s.ID); err != nil {
			color.Red("error deleting song %d: %v", s.ID, err)
		}
	}
	color.Green("catalog cleared (%d songs)", len(songs))

	if !all {
		return
	}

	err = filepath.Walk(songsDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".wav", ".m4a", ".mp3", ".flac", ".ogg":
			return os.Remove(path)
		}
		return nil
	})
	if err != nil {
		color.Red("error cleaning files in %s: %v", songsDir, err)
		return
	}
	color.Green("audio files cleared")
}
