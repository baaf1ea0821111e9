// Package tokenizer splits document text into normalised terms for
// frequency analysis. It lower-cases input, splits on every rune that is not
// a Unicode word character, and drops terms shorter than two runes. No
// stemming or stop-word removal is applied.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTermLength is the shortest term, in runes, that survives tokenisation.
const MinTermLength = 2

// Tokenize breaks text into lower-cased terms in document order. Duplicates
// are preserved so callers can count occurrences.
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !IsWordRune(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < MinTermLength {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// IsWordRune reports whether r is a word character: a letter, a number, or
// the connector underscore.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

// Set returns the distinct terms of tokens.
func Set(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
