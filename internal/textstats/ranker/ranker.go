package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/frequency"
)

// DefaultLimit is the number of statistics returned per request.
const DefaultLimit = 50

const precision = 1e6

// Rank orders stats rarest-first by tf, breaking ties lexicographically by
// term, and keeps at most limit entries. A non-positive limit keeps all.
// The input slice is left untouched.
func Rank(stats []frequency.Statistic, limit int) []frequency.Statistic {
	result := make([]frequency.Statistic, len(stats))
	copy(result, stats)
	sort.Slice(result, func(i, j int) bool {
		if result[i].TF != result[j].TF {
			return result[i].TF < result[j].TF
		}
		return result[i].Term < result[j].Term
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Round returns a copy of stats with tf and idf rounded to six decimals for
// presentation.
func Round(stats []frequency.Statistic) []frequency.Statistic {
	out := make([]frequency.Statistic, len(stats))
	for i, s := range stats {
		out[i] = frequency.Statistic{
			Term: s.Term,
			TF:   Round6(s.TF),
			IDF:  Round6(s.IDF),
		}
	}
	return out
}

// Round6 rounds v half away from zero to six decimal places.
func Round6(v float64) float64 {
	return math.Round(v*precision) / precision
}
