// Package candidate holds raw nearest-neighbour hits and the image-level
// deduplication applied before results are returned.
package candidate

import (
	"sort"

	"github.com/kailas-cloud/clipsearch/internal/domain/search/result"
)

// Candidate is one stored annotation returned by a KNN query.
// Distance is the store's raw distance: smaller is more similar.
type Candidate struct {
	ImageID   string
	ImagePath string
	Caption   string
	Distance  float64
}

// Dedupe keeps one candidate per ImageID, the one with the smallest distance.
// On equal distances the first seen wins. Output order is unspecified.
func Dedupe(cands []Candidate) []Candidate {
	best := make(map[string]int, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		i, seen := best[c.ImageID]
		if !seen {
			best[c.ImageID] = len(out)
			out = append(out, c)
			continue
		}
		if c.Distance < out[i].Distance {
			out[i] = c
		}
	}
	return out
}

// Rank deduplicates, sorts ascending by distance and truncates to k.
func Rank(cands []Candidate, k int) []Candidate {
	uniq := Dedupe(cands)
	sort.SliceStable(uniq, func(a, b int) bool {
		return uniq[a].Distance < uniq[b].Distance
	})
	if k >= 0 && len(uniq) > k {
		uniq = uniq[:k]
	}
	return uniq
}

// ToResults maps ranked candidates to their wire form.
func ToResults(cands []Candidate) []result.Result {
	out := make([]result.Result, len(cands))
	for i, c := range cands {
		out[i] = result.New(c.ImagePath, c.Caption)
	}
	return out
}

// DistinctImages counts distinct ImageIDs.
func DistinctImages(cands []Candidate) int {
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		seen[c.ImageID] = struct{}{}
	}
	return len(seen)
}
