package embedding

import (
	"strings"
	"unicode"
)

// =============================================================================
// LEXICAL TOKENIZATION - shared by the hash engine, the detector rules, and
// the fallback similarity path
// =============================================================================

// stopwords excluded from token sets; similarity over these carries no signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"to": true, "was": true, "were": true, "with": true,
}

// Tokenize lowercases the text and splits it on non-alphanumeric runes,
// dropping stopwords and single-character fragments.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TokenSet returns the distinct tokens of the text.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		set[tok] = true
	}
	return set
}

// Jaccard computes |a ∩ b| / |a ∪ b| over two token sets.
// Two empty sets are defined as dissimilar (0).
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// LexicalSimilarity is the fallback similarity used when the embedding
// backend is unavailable: Jaccard over normalized token sets.
func LexicalSimilarity(a, b string) float64 {
	return Jaccard(TokenSet(a), TokenSet(b))
}
