package router

import (
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrNoCandidates is returned when a fuzzy lookup has nothing to match
// against, e.g. no events are known yet.
var ErrNoCandidates = errors.New("no candidates to match against")

// BestMatch returns the candidate most similar to query by normalized edit
// distance, case-insensitively. No similarity floor is applied: a non-empty
// candidate set always yields a match. Ties keep the first occurrence.
func BestMatch(query string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	best := candidates[0]
	bestScore := similarity(query, candidates[0])
	for _, candidate := range candidates[1:] {
		if score := similarity(query, candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, nil
}

// similarity maps edit distance into [0, 1], where 1 is an exact match
// ignoring case.
func similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
