package frequency

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/tokenizer"
)

// AnalyzeCollection derives statistics for a collection merged into one
// pseudo-document, weighting terms by IDF fitted over the owner's whole
// corpus. For each vocabulary term present in the merged text, tf is
// recovered as tfidf/idf so it stays consistent with the vectorizer's
// weighting. Where idf is zero the quotient is undefined and tf falls back to
// count/total_terms of the merged text.
//
// The corpus is checked before the collection.
func AnalyzeCollection(collection, corpus []string, opts VectorizerOptions) ([]Statistic, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if len(collection) == 0 {
		return nil, ErrEmptyCollection
	}

	v := NewVectorizer(opts)
	if err := v.Fit(corpus); err != nil {
		return nil, fmt.Errorf("fitting corpus of %d documents: %w", len(corpus), err)
	}

	tokens := tokenizer.Tokenize(strings.Join(collection, " "))
	counts := Count(tokens)
	weights := v.transformCounts(counts)

	stats := make([]Statistic, 0, len(weights))
	for _, term := range counts.Terms() {
		tfidf, ok := weights[term]
		if !ok {
			continue
		}
		idf, _ := v.IDF(term)
		var tf float64
		if idf == 0 {
			tf = float64(counts[term]) / float64(len(tokens))
		} else {
			tf = tfidf / idf
		}
		stats = append(stats, Statistic{Term: term, TF: tf, IDF: idf})
	}
	return stats, nil
}
