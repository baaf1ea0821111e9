package frequency

import (
	"errors"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/tokenizer"
)

// ErrEmptyVocabulary is returned by Fit when no document yields a term.
var ErrEmptyVocabulary = errors.New("corpus vocabulary is empty")

// IDFMode selects the inverse-document-frequency weighting.
type IDFMode string

const (
	// IDFSmooth is ln((1+n)/(1+df)) + 1, as if one extra document contained
	// every term once.
	IDFSmooth IDFMode = "smooth"
	// IDFPlain is ln(n/df) + 1.
	IDFPlain IDFMode = "plain"
	// IDFRaw is ln(n/df); terms present in every document weigh zero.
	IDFRaw IDFMode = "raw"
)

// Norm selects the vector normalisation applied after weighting.
type Norm string

const (
	NormL2   Norm = "l2"
	NormNone Norm = "none"
)

// VectorizerOptions configures a Vectorizer. The zero value is replaced with
// DefaultVectorizerOptions field by field.
type VectorizerOptions struct {
	IDF         IDFMode `yaml:"idf"`
	Norm        Norm    `yaml:"norm"`
	SublinearTF bool    `yaml:"sublinearTF"`
}

// DefaultVectorizerOptions returns smooth IDF with L2 normalisation.
func DefaultVectorizerOptions() VectorizerOptions {
	return VectorizerOptions{
		IDF:  IDFSmooth,
		Norm: NormL2,
	}
}

// Vectorizer is a TF-IDF model fitted over a corpus. It is not safe for
// concurrent Fit calls; Transform and IDF are read-only after Fit.
type Vectorizer struct {
	opts      VectorizerOptions
	idf       map[string]float64
	totalDocs int
}

// WithDefaults fills the unset fields of o from DefaultVectorizerOptions.
func (o VectorizerOptions) WithDefaults() VectorizerOptions {
	defaults := DefaultVectorizerOptions()
	if o.IDF == "" {
		o.IDF = defaults.IDF
	}
	if o.Norm == "" {
		o.Norm = defaults.Norm
	}
	return o
}

// NewVectorizer creates an unfitted Vectorizer.
func NewVectorizer(opts VectorizerOptions) *Vectorizer {
	return &Vectorizer{opts: opts.WithDefaults()}
}

// Fit learns the vocabulary and IDF weights of docs.
func (v *Vectorizer) Fit(docs []string) error {
	df := make(DocumentFrequency)
	for _, doc := range docs {
		df.AddDocument(tokenizer.Tokenize(doc))
	}
	if len(df) == 0 {
		return ErrEmptyVocabulary
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = v.weight(n, float64(count))
	}
	v.idf = idf
	v.totalDocs = len(docs)
	return nil
}

func (v *Vectorizer) weight(n, df float64) float64 {
	switch v.opts.IDF {
	case IDFPlain:
		return math.Log(n/df) + 1
	case IDFRaw:
		return math.Log(n / df)
	default:
		return math.Log((1+n)/(1+df)) + 1
	}
}

// IDF returns the fitted weight of term and whether it is in the vocabulary.
func (v *Vectorizer) IDF(term string) (float64, bool) {
	w, ok := v.idf[term]
	return w, ok
}

// TotalDocs returns the number of documents the model was fitted on.
func (v *Vectorizer) TotalDocs() int {
	return v.totalDocs
}

// Vocabulary returns the fitted terms in lexicographic order.
func (v *Vectorizer) Vocabulary() []string {
	terms := make([]string, 0, len(v.idf))
	for term := range v.idf {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Transform returns the TF-IDF weights of the vocabulary terms present in
// text. Terms outside the vocabulary are ignored.
func (v *Vectorizer) Transform(text string) map[string]float64 {
	return v.transformCounts(Count(tokenizer.Tokenize(text)))
}

func (v *Vectorizer) transformCounts(counts Table) map[string]float64 {
	weights := make(map[string]float64, len(counts))
	for term, c := range counts {
		idf, ok := v.idf[term]
		if !ok {
			continue
		}
		tf := float64(c)
		if v.opts.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		weights[term] = tf * idf
	}
	if v.opts.Norm == NormL2 {
		var sumSquares float64
		for _, w := range weights {
			sumSquares += w * w
		}
		if sumSquares > 0 {
			norm := math.Sqrt(sumSquares)
			for term, w := range weights {
				weights[term] = w / norm
			}
		}
	}
	return weights
}
