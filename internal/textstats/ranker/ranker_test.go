package ranker

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/frequency"
)

func TestRankAscendingByTF(t *testing.T) {
	stats := []frequency.Statistic{
		{Term: "common", TF: 0.5},
		{Term: "rare", TF: 0.01},
		{Term: "middle", TF: 0.2},
	}
	got := Rank(stats, DefaultLimit)
	want := []string{"rare", "middle", "common"}
	for i, term := range want {
		if got[i].Term != term {
			t.Fatalf("rank[%d] = %q, want %q (full: %+v)", i, got[i].Term, term, got)
		}
	}
	if stats[0].Term != "common" {
		t.Error("Rank must not reorder its input")
	}
}

func TestRankTieBreakLexicographic(t *testing.T) {
	stats := []frequency.Statistic{
		{Term: "pear", TF: 0.1},
		{Term: "apple", TF: 0.1},
		{Term: "fig", TF: 0.1},
		{Term: "zz", TF: 0.05},
	}
	got := Rank(stats, 0)
	want := []string{"zz", "apple", "fig", "pear"}
	for i, term := range want {
		if got[i].Term != term {
			t.Errorf("rank[%d] = %q, want %q", i, got[i].Term, term)
		}
	}
}

func TestRankLimit(t *testing.T) {
	stats := make([]frequency.Statistic, 0, 120)
	for i := 0; i < 120; i++ {
		stats = append(stats, frequency.Statistic{
			Term: fmt.Sprintf("term%03d", i),
			TF:   float64(120-i) / 1000,
		})
	}
	got := Rank(stats, DefaultLimit)
	if len(got) != DefaultLimit {
		t.Fatalf("len = %d, want %d", len(got), DefaultLimit)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].TF > got[i].TF {
			t.Fatalf("not ascending at %d: %v > %v", i, got[i-1].TF, got[i].TF)
		}
	}
	if len(Rank(stats[:10], DefaultLimit)) != 10 {
		t.Error("short input should not be padded or truncated")
	}
}

func TestRound6(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2.0 / 3.0, 0.666667},
		{1.0 / 3.0, 0.333333},
		{0, 0},
		{1.5, 1.5},
		{-2.0 / 3.0, -0.666667},
	}
	for _, tt := range tests {
		if got := Round6(tt.in); got != tt.want {
			t.Errorf("Round6(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundCopies(t *testing.T) {
	stats := []frequency.Statistic{{Term: "cat", TF: 2.0 / 3.0, IDF: 0.4054651081}}
	out := Round(stats)
	if out[0].TF != 0.666667 || out[0].IDF != 0.405465 {
		t.Errorf("Round = %+v", out[0])
	}
	if stats[0].TF == out[0].TF {
		t.Error("Round must not modify its input")
	}
}
