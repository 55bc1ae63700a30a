// Package similarity holds the pure scoring functions shared by the
// recommendation engines and the fuzzy search ranker.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidInput is returned by boundary validation when a caller hands the
// scoring functions data they are not defined for.
var ErrInvalidInput = errors.New("invalid input")

// Levenshtein returns the edit distance between a and b with unit cost for
// insertion, deletion and substitution. Strings are compared rune by rune.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// StringSimilarity normalizes the edit distance by the longer length:
// (maxLen - distance) / maxLen. Two empty strings are identical (1.0).
func StringSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1.0
	}

	distance := Levenshtein(a, b)
	return float64(longest-distance) / float64(longest)
}

// Cosine computes the cosine similarity of two sparse vectors. The dot product
// only covers keys of a that are also present in b, while each norm is taken
// over the vector's full key set. Returns 0 when the vectors share no keys or
// either norm is zero. Inputs are not modified.
func Cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Sorted keys keep floating point summation order stable between calls.
	keys := sortedKeys(a)

	var dot float64
	shared := 0
	for _, k := range keys {
		if vb, ok := b[k]; ok {
			dot += a[k] * vb
			shared++
		}
	}
	if shared == 0 {
		return 0
	}

	normA := floats.Norm(orderedValues(a, keys), 2)
	normB := floats.Norm(orderedValues(b, sortedKeys(b)), 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (normA * normB)
	// Rounding can push identical vectors a hair over 1.
	return math.Min(math.Max(sim, 0), 1)
}

// TokenCounts turns a token multiset into a term-frequency vector.
func TokenCounts(tokens []string) map[string]float64 {
	counts := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// TokenCosine is Cosine over the term frequencies of two token multisets.
func TokenCosine(a, b []string) float64 {
	return Cosine(TokenCounts(a), TokenCounts(b))
}

// ValidateVector rejects weights that Cosine is not defined for.
func ValidateVector(v map[string]float64) error {
	for k, w := range v {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight for %q is not finite", ErrInvalidInput, k)
		}
		if w < 0 {
			return fmt.Errorf("%w: weight for %q is negative", ErrInvalidInput, k)
		}
	}
	return nil
}

func sortedKeys(v map[string]float64) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orderedValues(v map[string]float64, keys []string) []float64 {
	values := make([]float64, len(keys))
	for i, k := range keys {
		values[i] = v[k]
	}
	return values
}
