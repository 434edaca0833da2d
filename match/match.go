// Package match implements the offset-histogram matcher: given a
// query's fingerprint hashes, find which catalog song (if any) they
// align to, and how confidently.
package match

import (
	"sort"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/shazam"
)

// Result is the outcome of matching a query's hashes against the
// catalog.
type Result struct {
	SongID     uint32
	Peak       int     // count of hashes aligned at the winning offset
	Align      int     // winning time offset (anchor_time - query_time)
	Confidence float64 // 100 * Peak / total query hashes, clamped [0,100]
	ScoreRatio float64 // Peak / max(second-best peak, 1)
	Accepted   bool
}

// Query is a derived fingerprint ready for matching: one hash per
// emitted peak pair, paired with the time-bin it was anchored at in
// the query clip.
type Query struct {
	Hash      shazam.Hash
	QueryTime int
}

// FromHashedPeaks adapts shazam.Fingerprint's output (which labels
// each hash with the anchor time inside whatever clip it came from)
// into the Query shape the matcher consumes.
func FromHashedPeaks(hashed []shazam.HashedPeak) []Query {
	queries := make([]Query, len(hashed))
	for i, hp := range hashed {
		queries[i] = Query{Hash: hp.Hash, QueryTime: hp.AnchorTime}
	}
	return queries
}

// Matcher resolves queries against a catalog.Store using the
// acceptance thresholds in a shazam.Config.
type Matcher struct {
	store *catalog.Store
	cfg   shazam.Config
}

// New creates a Matcher backed by store, using cfg's MinAligned/
// MinRatio/MinConfidence thresholds.
func New(store *catalog.Store, cfg shazam.Config) *Matcher {
	return &Matcher{store: store, cfg: cfg}
}

// Match runs the full pipeline (spec §4.6): batched lookup, offset
// histogram, ranking, and acceptance. It always returns the best
// candidate, if any postings were found at all; callers must check
// Result.Accepted before treating it as a real match.
func (m *Matcher) Match(queries []Query) (Result, error) {
	if len(queries) == 0 {
		return Result{}, nil
	}

	distinct := distinctHashes(queries)
	postings, err := m.store.Lookup(distinct)
	if err != nil {
		return Result{}, err
	}

	// H[song_id][offset] = count of hashes aligned at that offset.
	histogram := make(map[uint32]map[int]int)
	for _, q := range queries {
		for _, p := range postings[q.Hash] {
			offset := p.AnchorTime - q.QueryTime
			songHist := histogram[p.SongID]
			if songHist == nil {
				songHist = make(map[int]int)
				histogram[p.SongID] = songHist
			}
			songHist[offset]++
		}
	}

	type candidate struct {
		songID uint32
		peak   int
		align  int
	}
	candidates := make([]candidate, 0, len(histogram))
	for songID, songHist := range histogram {
		bestOffset, bestCount := 0, 0
		for offset, count := range songHist {
			if count > bestCount {
				bestCount = count
				bestOffset = offset
			}
		}
		candidates = append(candidates, candidate{songID: songID, peak: bestCount, align: bestOffset})
	}

	if len(candidates) == 0 {
		return Result{}, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].peak > candidates[j].peak })

	top := candidates[0]
	second := 0
	if len(candidates) > 1 {
		second = candidates[1].peak
	}

	confidence := 100 * float64(top.peak) / float64(max(1, len(queries)))
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	scoreRatio := float64(top.peak) / float64(max(second, 1))

	accepted := top.peak >= m.cfg.MinAligned &&
		scoreRatio >= m.cfg.MinRatio &&
		confidence >= m.cfg.MinConfidence

	return Result{
		SongID:     top.songID,
		Peak:       top.peak,
		Align:      top.align,
		Confidence: confidence,
		ScoreRatio: scoreRatio,
		Accepted:   accepted,
	}, nil
}

func distinctHashes(queries []Query) []shazam.Hash {
	seen := make(map[shazam.Hash]struct{}, len(queries))
	var out []shazam.Hash
	for _, q := range queries {
		if _, ok := seen[q.Hash]; !ok {
			seen[q.Hash] = struct{}{}
			out = append(out, q.Hash)
		}
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
