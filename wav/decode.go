// Package wav turns arbitrary audio files into the float64 PCM samples
// the shazam pipeline operates on, and extracts the metadata (title,
// artist, duration) used to label catalog entries. Format conversion
// is delegated to ffmpeg/ffprobe, the same external tools the original
// ingestion path already shells out to; PCM decoding of the resulting
// WAV uses github.com/go-audio/wav rather than a hand-rolled RIFF
// reader.
package wav

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-audio/wav"
	"github.com/tidwall/gjson"
)

// Info is a fully decoded audio file: mono or interleaved float64
// samples at the file's native sample rate, ready for
// shazam.ToMono/shazam.Resample.
type Info struct {
	Samples    []float64
	SampleRate int
	Channels   int
	Duration   float64 // seconds
}

// ReadWavInfo decodes a 16-bit PCM WAV file into an Info. Callers that
// have a non-WAV input should run it through ConvertToWAV first.
func ReadWavInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Info{}, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", path, err)
	}

	samples := make([]float64, len(buf.Data))
	maxAmp := float64(int(1) << (uint(buf.SourceBitDepth) - 1))
	for i, s := range buf.Data {
		samples[i] = float64(s) / maxAmp
	}

	return Info{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Duration:   float64(len(samples)/max(buf.Format.NumChannels, 1)) / float64(buf.Format.SampleRate),
	}, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Metadata is the handful of ffprobe-reported tags the catalog cares
// about when a caller doesn't supply title/artist explicitly.
type Metadata struct {
	Title  string
	Artist string
}

// GetMetadata runs ffprobe to pull container tags out of an audio
// file. Since taggers disagree on "artist" vs "ARTIST" vs "Artist",
// each tag is matched in those three casings; other casings are not
// recognized.
func GetMetadata(path string) (Metadata, error) {
	cmd := exec.Command(
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe metadata query failed: %w", err)
	}
	if !json.Valid(out) {
		return Metadata{}, fmt.Errorf("ffprobe produced invalid JSON for %s", path)
	}

	tags := gjson.GetBytes(out, "format.tags")
	var meta Metadata
	tags.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "title", "TITLE", "Title":
			meta.Title = value.String()
		case "artist", "ARTIST", "Artist":
			meta.Artist = value.String()
		}
		return true
	})

	return meta, nil
}
