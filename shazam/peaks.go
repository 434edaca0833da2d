package shazam

// Peak is a constellation point: a (time-bin, frequency-bin) location
// the spectrogram is locally loudest at.
type Peak struct {
	T int // time-bin index (frame index)
	F int // frequency-bin index (DFT bin)
}

// reflectIndex maps an out-of-range index back into [0, n) by
// reflection, the padding mode spec §4.3 calls for at the edges of the
// neighborhood comparison.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// ExtractPeaks finds every spectral bin that is at or above FloorDB
// and is the strict maximum of its NeighborT*2+1 x NeighborF*2+1
// neighborhood (reflection-padded at the edges). A neighbor equal to
// the center disqualifies it, so when equal-valued maxima lie in each
// other's neighborhood none of them survives.
// Peaks are returned sorted by time ascending, then frequency ascending.
func ExtractPeaks(spec [][]float64, cfg Config) []Peak {
	nFrames := len(spec)
	if nFrames == 0 {
		return nil
	}
	nBins := len(spec[0])

	var peaks []Peak
	for t := 0; t < nFrames; t++ {
		row := spec[t]
		for f := 0; f < nBins; f++ {
			val := row[f]
			if val < cfg.FloorDB {
				continue
			}
			if isNeighborhoodMax(spec, t, f, val, cfg.NeighborT, cfg.NeighborF, nFrames, nBins) {
				peaks = append(peaks, Peak{T: t, F: f})
			}
		}
	}
	return peaks
}

func isNeighborhoodMax(spec [][]float64, t, f int, val float64, nt, nf, nFrames, nBins int) bool {
	for dt := -nt; dt <= nt; dt++ {
		tt := reflectIndex(t+dt, nFrames)
		row := spec[tt]
		for df := -nf; df <= nf; df++ {
			if dt == 0 && df == 0 {
				continue
			}
			ff := reflectIndex(f+df, nBins)
			if row[ff] >= val {
				return false
			}
		}
	}
	return true
}
