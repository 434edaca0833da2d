package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/shazam"
	"github.com/kevigoci/musica/wav"
	"github.com/kevigoci/musica/xerrors"
)

// fingerprintFile runs the full resample -> frame -> spectrogram ->
// peak -> hash pipeline over an arbitrary audio file, converting it to
// WAV first via ffmpeg if it isn't one already. Grounded on the
// teacher's find/saveEntry split, which always funnels through a WAV
// intermediate ahead of the Go-side DSP.
func fingerprintFile(path string, cfg shazam.Config) ([]shazam.HashedPeak, wav.Info, error) {
	wavPath := path
	if filepath.Ext(path) != ".wav" {
		converted, err := wav.ConvertToWAV(path)
		if err != nil {
			return nil, wav.Info{}, xerrors.Wrap(xerrors.Decode, fmt.Errorf("convert %s: %w", path, err))
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	info, err := wav.ReadWavInfo(wavPath)
	if err != nil {
		return nil, wav.Info{}, xerrors.Wrap(xerrors.Decode, err)
	}

	mono := shazam.ToMono(info.Samples, info.Channels)
	resampled, err := shazam.Resample(mono, info.SampleRate, cfg.SampleRate)
	if err != nil {
		return nil, info, err
	}

	framer := shazam.NewFramer(cfg.WindowSize, cfg.HopSize)
	frames := framer.Push(resampled)
	if tail := framer.Flush(); tail != nil {
		frames = append(frames, tail)
	}

	peaks := shazam.ExtractPeaks(shazam.Spectrogram(frames, cfg), cfg)
	if len(peaks) == 0 {
		return nil, info, xerrors.NewEmptyFingerprintError("no peaks extracted from %s", path)
	}

	return shazam.Fingerprint(peaks, cfg), info, nil
}

// registerAndFingerprint fingerprints path and adds song plus every
// derived hash to store in one atomic AddSong call, so a failure
// partway through never leaves a song registered without its
// fingerprints (spec §4.5).
func registerAndFingerprint(store *catalog.Store, cfg shazam.Config, song catalog.Song, path string) (catalog.Song, int, error) {
	hashed, info, err := fingerprintFile(path, cfg)
	if err != nil {
		return catalog.Song{}, 0, err
	}

	song.Duration = info.Duration
	songID, err := store.AddSong(song, hashed)
	if err != nil {
		return catalog.Song{}, 0, err
	}

	song.ID = songID
	return song, len(hashed), nil
}
