package dedup

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// nameSimilarityThreshold is the token-sort ratio at or above which two
// normalized company names are judged to be the same company. 90 keeps
// "ACME INC" / "ACME, Incorporated" together while holding "Acme East" and
// "Acme West" apart.
const nameSimilarityThreshold = 90.0

// TokenSortRatio scores two normalized names in [0,100]: tokens are sorted
// and rejoined so word order does not matter, then compared with
// Levenshtein similarity.
func TokenSortRatio(a, b string) float64 {
	return levenshtein.Similarity(sortTokens(a), sortTokens(b), nil) * 100
}

// SameCompany reports whether two raw company names normalize to the same
// company. Empty names never match; a name that normalizes away entirely
// is a normalization failure and degrades to "no match".
func SameCompany(a, b string) bool {
	return sameCompanyNormalized(NormalizeName(a), NormalizeName(b))
}

func sameCompanyNormalized(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return TokenSortRatio(a, b) >= nameSimilarityThreshold
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
