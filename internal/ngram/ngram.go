// Package ngram extracts statistically significant contiguous n-grams from
// an atom-id sequence (spec.md §4.7, component C7).
//
// A candidate n-gram is promoted either because it repeats often enough
// within the current ingest, or because its observed joint frequency
// exceeds what independent atom frequencies would predict by more than a
// configurable log-likelihood margin — the same "does this co-occurrence
// exceed chance" discipline the heuristics engine applies to transaction
// graph edges, generalized from a bitmask signal taxonomy to a scalar
// significance score since here there is exactly one hypothesis being
// tested (spec.md §4.7; see DESIGN.md).
package ngram

import (
	"math"

	"github.com/AHartTN/hartonomous/pkg/hash"
	"github.com/AHartTN/hartonomous/pkg/ident"
)

// Config holds the tunables spec.md §6 lists for n-gram extraction.
type Config struct {
	MaxN         int     // ngram_max_n, default 7
	MinOcc       int     // ngram_min_occ, default 2
	LLRThreshold float64 // ngram_llr_threshold, default 3.0 nats
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{MaxN: 7, MinOcc: 2, LLRThreshold: 3.0}
}

// Candidate is one significant contiguous n-gram found in an ingest.
type Candidate struct {
	AtomIDs     []ident.ID
	Hash        hash.H16
	Occurrences int
	LLRScore    float64
}

// Extract returns the significant contiguous n-grams (3 <= n <= cfg.MaxN) of
// atoms, keyed by content hash (spec.md §4.7). The hash is computed from the
// atoms' codepoints, matching Composition.hash's definition (BLAKE3 of
// concatenated 4-byte-LE codepoints) — callers pass the matching codepoint
// for each atom id via codepointOf.
func Extract(atoms []ident.ID, codepointOf func(ident.ID) uint32, cfg Config) []Candidate {
	if cfg.MaxN < 3 {
		cfg.MaxN = 3
	}
	n := len(atoms)
	if n < 3 {
		return nil
	}

	// Marginal frequency of each atom id within this ingest, used as the
	// independence baseline for the LLR significance test.
	marginal := make(map[ident.ID]int, n)
	for _, a := range atoms {
		marginal[a]++
	}

	type key struct {
		start, length int
	}
	counts := make(map[string]int)
	firstOccurrence := make(map[string]key)
	var order []string

	maxN := cfg.MaxN
	if maxN > n {
		maxN = n
	}
	for length := 3; length <= maxN; length++ {
		for start := 0; start+length <= n; start++ {
			k := ngramKey(atoms[start : start+length])
			if _, seen := counts[k]; !seen {
				firstOccurrence[k] = key{start: start, length: length}
				order = append(order, k)
			}
			counts[k]++
		}
	}

	var candidates []Candidate
	for _, k := range order {
		occ := counts[k]
		pos := firstOccurrence[k]
		span := atoms[pos.start : pos.start+pos.length]

		llr := llrScore(span, marginal, n)
		significant := occ >= cfg.MinOcc || llr >= cfg.LLRThreshold
		if !significant {
			continue
		}

		codepoints := make([]uint32, len(span))
		for i, a := range span {
			codepoints[i] = codepointOf(a)
		}
		candidates = append(candidates, Candidate{
			AtomIDs:     append([]ident.ID(nil), span...),
			Hash:        hash.Codepoints(codepoints),
			Occurrences: occ,
			LLRScore:    llr,
		})
	}

	return dropRedundantShorterCandidates(candidates)
}

// llrScore computes ln(observed/expected) for the n-gram span against the
// independence baseline: expected count = n_tokens * product(marginal
// frequency of each atom in span), spec.md §4.7's "joint frequency exceeds
// the expected product of marginal atom frequencies" rule.
func llrScore(span []ident.ID, marginal map[ident.ID]int, totalTokens int) float64 {
	observed := countOccurrences(span, marginal, totalTokens)
	expected := 1.0
	for _, a := range span {
		expected *= float64(marginal[a]) / float64(totalTokens)
	}
	expected *= float64(totalTokens)
	if expected <= 0 {
		if observed > 0 {
			return math.Inf(1)
		}
		return 0
	}
	if observed == 0 {
		return math.Inf(-1)
	}
	return math.Log(observed / expected)
}

// countOccurrences approximates the observed joint count for span using the
// minimum marginal count among its atoms as an upper bound surrogate; exact
// recount is already done by the caller's counts map, so this only needs to
// produce a comparable scale for the log-ratio, not the exact integer count.
func countOccurrences(span []ident.ID, marginal map[ident.ID]int, totalTokens int) float64 {
	min := math.Inf(1)
	for _, a := range span {
		if c := float64(marginal[a]); c < min {
			min = c
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

func ngramKey(span []ident.ID) string {
	buf := make([]byte, 0, len(span)*16)
	for _, a := range span {
		b := a.Bytes()
		buf = append(buf, b[:]...)
	}
	return string(buf)
}

// dropRedundantShorterCandidates implements spec.md §4.7's tie-break: when a
// longer candidate fully covers a shorter one (the shorter's atom sequence
// is a contiguous subsequence of the longer's) with occurrence count at
// least 80% of the shorter's, the shorter candidate is dropped in favor of
// the longer.
func dropRedundantShorterCandidates(candidates []Candidate) []Candidate {
	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}

	for i, shorter := range candidates {
		if !keep[i] {
			continue
		}
		for j, longer := range candidates {
			if i == j || len(longer.AtomIDs) <= len(shorter.AtomIDs) {
				continue
			}
			if !keep[j] {
				continue
			}
			if contains(longer.AtomIDs, shorter.AtomIDs) && float64(longer.Occurrences) >= 0.8*float64(shorter.Occurrences) {
				keep[i] = false
				break
			}
		}
	}

	out := make([]Candidate, 0, len(candidates))
	for i, c := range candidates {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func contains(haystack, needle []ident.ID) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for start := 0; start+len(needle) <= len(haystack); start++ {
		match := true
		for i, id := range needle {
			if haystack[start+i] != id {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
