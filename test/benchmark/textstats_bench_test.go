// Package benchmark measures throughput and allocations of the tokenizer,
// TF/IDF analysis, ranking and the Huffman codec over synthetic corpora.
package benchmark

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/frequency"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/ranker"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Term frequency measures how often a word appears in one document,
        while inverse document frequency measures how rare it is across the
        whole library. Multiplying the two highlights words that characterise
        a document without being common everywhere. Über-naïve café prose
        keeps the Unicode paths warm.`,
	"long": strings.Repeat(`Huffman coding assigns shorter bit strings to frequent
        characters and longer ones to rare characters, building the code from a
        priority queue of subtrees ordered by weight. The result is a prefix
        code: no code is the start of another, so a decoder can walk the tree
        bit by bit without separators. `, 20),
}

// corpus returns n synthetic documents of docLen words drawn from a Zipf-ish
// vocabulary, deterministic for a given seed.
func corpus(n, docLen int, seed int64) []string {
	r := rand.New(rand.NewSource(seed))
	zipf := rand.NewZipf(r, 1.2, 1, 5000)
	docs := make([]string, n)
	var b strings.Builder
	for i := range docs {
		b.Reset()
		for j := 0; j < docLen; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "w%d", zipf.Uint64())
		}
		docs[i] = b.String()
	}
	return docs
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}

func BenchmarkAnalyzeDocument(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		docs := corpus(n, 300, 1)
		b.Run(fmt.Sprintf("corpus_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				a, err := frequency.AnalyzeDocument(docs[0], docs[1:])
				if err != nil {
					b.Fatal(err)
				}
				_ = ranker.Rank(a.Statistics(), ranker.DefaultLimit)
			}
		})
	}
}

func BenchmarkAnalyzeCollection(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		docs := corpus(n, 300, 2)
		members := docs[:max(1, n/10)]
		b.Run(fmt.Sprintf("corpus_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				stats, err := frequency.AnalyzeCollection(members, docs, frequency.DefaultVectorizerOptions())
				if err != nil {
					b.Fatal(err)
				}
				_ = ranker.Rank(stats, ranker.DefaultLimit)
			}
		})
	}
}

func BenchmarkRank(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		stats := make([]frequency.Statistic, n)
		r := rand.New(rand.NewSource(3))
		for i := range stats {
			stats[i] = frequency.Statistic{
				Term: fmt.Sprintf("term%d", i),
				TF:   float64(r.Intn(50)) / 1000,
				IDF:  r.Float64(),
			}
		}
		b.Run(fmt.Sprintf("terms_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = ranker.Round(ranker.Rank(stats, ranker.DefaultLimit))
			}
		})
	}
}
