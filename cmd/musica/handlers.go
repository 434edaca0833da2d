package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/match"
	"github.com/kevigoci/musica/wav"
	"github.com/kevigoci/musica/xerrors"
)

const maxUploadSize = 500 << 20 // 500MB

type songPayload struct {
	ID       uint32  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type matchPayload struct {
	Song       songPayload `json:"song"`
	Confidence float64     `json:"confidence"`
	Accepted   bool        `json:"accepted"`
	Message    string      `json:"message,omitempty"`
}

type statsPayload struct {
	TotalSongs        int `json:"totalSongs"`
	TotalFingerprints int `json:"totalFingerprints"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	log.Printf("[http] error %d: %s", status, msg)
	writeJSON(w, status, map[string]string{"error": msg})
}

func toSongPayload(s catalog.Song) songPayload {
	return songPayload{ID: s.ID, Title: s.Title, Artist: s.Artist, Album: s.Album, Duration: s.Duration}
}

func saveUploadedFile(r *http.Request) (string, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("no file provided: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll("tmp", 0o755); err != nil {
		return "", "", fmt.Errorf("create tmp dir: %w", err)
	}

	tmpPath := filepath.Join("tmp", header.Filename)
	dst, err := os.Create(tmpPath)
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", "", fmt.Errorf("write file: %w", err)
	}
	return tmpPath, header.Filename, nil
}

// handleAddSong implements POST /api/songs: multipart upload with an
// optional "metadata" form field carrying an opaque JSON blob (artwork
// URL, external IDs, anything the caller wants attached but the
// catalog never interprets). The blob is validated with
// github.com/buger/jsonparser before being stored, rather than fully
// unmarshaled, matching how the rest of the catalog boundary treats
// metadata as opaque.
func (a *api) handleAddSong(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	tmpPath, filename, err := saveUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tmpPath)

	title := r.FormValue("title")
	artist := r.FormValue("artist")
	album := r.FormValue("album")

	meta, metaErr := wav.GetMetadata(tmpPath)
	if metaErr == nil {
		if title == "" {
			title = meta.Title
		}
		if artist == "" {
			artist = meta.Artist
		}
	}
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if artist == "" {
		artist = "unknown"
	}

	var metadataBlob json.RawMessage
	if raw := r.FormValue("metadata"); raw != "" {
		if err := jsonparser.ObjectEach([]byte(raw), func(_, _ []byte, _ jsonparser.ValueType, _ int) error {
			return nil
		}); err != nil {
			writeError(w, http.StatusBadRequest, "metadata must be a JSON object")
			return
		}
		metadataBlob = json.RawMessage(raw)
	}

	key := catalog.SongKey(title, artist)
	if _, exists, _ := a.store.GetSongByKey(key); exists {
		writeError(w, http.StatusConflict, fmt.Sprintf("'%s' by '%s' already exists", title, artist))
		return
	}

	song, fpCount, err := registerAndFingerprint(a.store, fpConfig, catalog.Song{
		Title: title, Artist: artist, Album: album, Path: tmpPath, Metadata: metadataBlob, Key: key,
	}, tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[songs] added %q by %q (%d fingerprints)", song.Title, song.Artist, fpCount)
	writeJSON(w, http.StatusCreated, toSongPayload(song))
}

// handleListSongs implements GET /api/songs.
func (a *api) handleListSongs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	songs, err := a.store.ListSongs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list songs")
		return
	}

	payload := make([]songPayload, 0, len(songs))
	for _, s := range songs {
		payload = append(payload, toSongPayload(s))
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleSongByID implements DELETE /api/songs/{id}.
func (a *api) handleSongByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/songs/")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}

	if err := a.store.DeleteSong(uint32(id)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete song")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats implements GET /api/stats.
func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := a.store.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, statsPayload{TotalSongs: stats.TotalSongs, TotalFingerprints: stats.TotalFingerprints})
}

// handleRecognize implements POST /api/recognize: the file-upload
// recognition surface spec.md §6 calls for, alongside the streaming
// websocket path.
func (a *api) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	tmpPath, _, err := saveUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tmpPath)

	hashed, _, err := fingerprintFile(tmpPath, fpConfig)
	if xerrors.Is(err, xerrors.EmptyFingerprint) {
		// a silent or featureless clip is a no_match, not a failure (spec §7).
		writeJSON(w, http.StatusOK, matchPayload{Accepted: false, Message: "no peaks found in uploaded audio"})
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("fingerprint error: %v", err))
		return
	}

	m := match.New(a.store, fpConfig)
	result, err := m.Match(match.FromHashedPeaks(hashed))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("match error: %v", err))
		return
	}

	if !result.Accepted {
		writeJSON(w, http.StatusOK, matchPayload{Accepted: false})
		return
	}

	song, err := a.store.GetSong(result.SongID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "matched song could not be loaded")
		return
	}

	writeJSON(w, http.StatusOK, matchPayload{
		Song:       toSongPayload(song),
		Confidence: result.Confidence,
		Accepted:   true,
	})
}
