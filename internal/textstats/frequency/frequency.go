// Package frequency builds term-count tables from tokenised text and derives
// TF/IDF statistics, either for a single document against the rest of its
// owner's library or for a collection treated as one merged document.
package frequency

import (
	"errors"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/tokenizer"
)

var (
	ErrEmptyDocument   = errors.New("document contains no terms")
	ErrEmptyCorpus     = errors.New("corpus contains no documents")
	ErrEmptyCollection = errors.New("collection contains no documents")
)

// Statistic is a (term, tf, idf) triple at full floating-point precision.
type Statistic struct {
	Term string  `json:"word"`
	TF   float64 `json:"tf"`
	IDF  float64 `json:"idf"`
}

// Table maps a term to its occurrence count within one text.
type Table map[string]int

// Count builds a Table from tokens.
func Count(tokens []string) Table {
	t := make(Table, len(tokens)/2+1)
	for _, tok := range tokens {
		t[tok]++
	}
	return t
}

// Total returns the sum of all counts.
func (t Table) Total() int {
	total := 0
	for _, c := range t {
		total += c
	}
	return total
}

// Terms returns the table's terms in lexicographic order.
func (t Table) Terms() []string {
	terms := make([]string, 0, len(t))
	for term := range t {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// DocumentFrequency maps a term to the number of documents containing it at
// least once.
type DocumentFrequency map[string]int

// AddDocument increments the document frequency of every distinct term in
// tokens exactly once.
func (df DocumentFrequency) AddDocument(tokens []string) {
	for term := range tokenizer.Set(tokens) {
		df[term]++
	}
}

// DocumentAnalysis is the result of single-document analysis.
type DocumentAnalysis struct {
	Frequencies       Table
	DocumentFrequency DocumentFrequency
	TotalTerms        int
	TotalDocs         int
}

// AnalyzeDocument counts the target's terms and builds document frequencies
// across others plus the target itself. others must hold only the readable
// documents of the corpus, excluding the target; each one counts toward
// TotalDocs.
func AnalyzeDocument(target string, others []string) (*DocumentAnalysis, error) {
	tokens := tokenizer.Tokenize(target)
	if len(tokens) == 0 {
		return nil, ErrEmptyDocument
	}

	df := make(DocumentFrequency)
	totalDocs := 0
	for _, text := range others {
		df.AddDocument(tokenizer.Tokenize(text))
		totalDocs++
	}

	// The target is added last so every one of its terms has df >= 1.
	df.AddDocument(tokens)
	totalDocs++

	return &DocumentAnalysis{
		Frequencies:       Count(tokens),
		DocumentFrequency: df,
		TotalTerms:        len(tokens),
		TotalDocs:         totalDocs,
	}, nil
}

// TF returns the term frequency of term in the analysed document.
func (a *DocumentAnalysis) TF(term string) float64 {
	return float64(a.Frequencies[term]) / float64(a.TotalTerms)
}

// IDF returns ln(total_docs / doc_freq) for term. Terms unknown to the
// corpus yield +Inf.
func (a *DocumentAnalysis) IDF(term string) float64 {
	return math.Log(float64(a.TotalDocs) / float64(a.DocumentFrequency[term]))
}

// Statistics returns one Statistic per distinct term of the target, in
// lexicographic term order.
func (a *DocumentAnalysis) Statistics() []Statistic {
	terms := a.Frequencies.Terms()
	stats := make([]Statistic, 0, len(terms))
	for _, term := range terms {
		stats = append(stats, Statistic{
			Term: term,
			TF:   a.TF(term),
			IDF:  a.IDF(term),
		})
	}
	return stats
}
