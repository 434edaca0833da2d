package shazam

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// HashSize is the width of a fingerprint hash in raw bytes (80 bits,
// rendered as 20 hex characters at the storage boundary).
const HashSize = 10

// Hash is a fixed-width fingerprint token.
type Hash [HashSize]byte

// String renders a Hash as the 20 lowercase hex characters used in the
// catalog's on-disk representation.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 20-character hex string back into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// HashedPeak is one emitted (hash, anchor-time) pair from the hasher.
type HashedPeak struct {
	Hash       Hash
	AnchorTime int
}

// canonicalAddress builds the stable byte representation of the triple
// (f_a, f_p, dt) that spec §4.4 hashes: three decimal integers
// separated by '|'. Hashing the decimal form rather than packing the
// raw integers keeps the derivation stable across architectures and
// lets the bit width of each field change without touching the wire
// format.
func canonicalAddress(freqAnchor, freqTarget, dt int) []byte {
	buf := make([]byte, 0, 24)
	buf = strconv.AppendInt(buf, int64(freqAnchor), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(freqTarget), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(dt), 10)
	return buf
}

// HashPair derives the Hash for an anchor/target peak pair with time
// delta dt = target.T - anchor.T.
func HashPair(anchor, target Peak) Hash {
	sum := sha1.Sum(canonicalAddress(anchor.F, target.F, target.T-anchor.T))
	var h Hash
	copy(h[:], sum[:HashSize])
	return h
}

// Fingerprint combinatorially pairs each anchor peak with up to FanOut
// later peaks inside the target zone (spec §4.4) and emits one
// HashedPeak per pair. peaks must be sorted by T ascending, then F
// ascending, which is the order ExtractPeaks already returns.
func Fingerprint(peaks []Peak, cfg Config) []HashedPeak {
	var out []HashedPeak

	for i, anchor := range peaks {
		paired := 0
		for j := i + 1; j < len(peaks) && paired < cfg.FanOut; j++ {
			target := peaks[j]

			dt := target.T - anchor.T
			if dt < cfg.MinDT {
				continue
			}
			if dt > cfg.MaxDT {
				break // peaks are time-sorted; nothing further in range
			}

			df := target.F - anchor.F
			if df < -cfg.MaxDF || df > cfg.MaxDF {
				continue
			}

			out = append(out, HashedPeak{
				Hash:       HashPair(anchor, target),
				AnchorTime: anchor.T,
			})
			paired++
		}
	}

	return out
}
