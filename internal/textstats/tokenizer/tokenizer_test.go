package tokenizer

import (
	"slices"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: []string{}},
		{name: "only punctuation", input: "!!! ... ,,,", want: []string{}},
		{name: "lowercases", input: "Cat CAT cat", want: []string{"cat", "cat", "cat"}},
		{name: "drops single runes", input: "a b cd e fg", want: []string{"cd", "fg"}},
		{name: "splits on punctuation", input: "hello,world;foo-bar", want: []string{"hello", "world", "foo", "bar"}},
		{name: "keeps digits and underscore", input: "v2 snake_case 42", want: []string{"v2", "snake_case", "42"}},
		{name: "unicode letters", input: "Привет мир ёж", want: []string{"привет", "мир", "ёж"}},
		{name: "two rune cyrillic kept", input: "я он", want: []string{"он"}},
		{name: "apostrophe splits", input: "don't", want: []string{"don"}},
		{name: "whitespace variants", input: "one\ttwo\nthree\r\nfour", want: []string{"one", "two", "three", "four"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Tokenize(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenizePreservesDuplicatesAndOrder(t *testing.T) {
	got := Tokenize("dog cat dog bird cat")
	want := []string{"dog", "cat", "dog", "bird", "cat"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSet(t *testing.T) {
	set := Set([]string{"cat", "cat", "dog"})
	if len(set) != 2 {
		t.Fatalf("expected 2 distinct terms, got %d", len(set))
	}
	for _, term := range []string{"cat", "dog"} {
		if _, ok := set[term]; !ok {
			t.Errorf("missing term %q", term)
		}
	}
}

func FuzzTokenize(f *testing.F) {
	f.Add("The quick brown fox")
	f.Add("")
	f.Add("a,b;c d_e 12 Ωmega")
	f.Fuzz(func(t *testing.T, input string) {
		for _, term := range Tokenize(input) {
			if len([]rune(term)) < MinTermLength {
				t.Fatalf("term %q shorter than %d runes", term, MinTermLength)
			}
			for _, r := range term {
				if !IsWordRune(r) {
					t.Fatalf("term %q contains non-word rune %q", term, r)
				}
			}
		}
	})
}

func TestCombiningMarksSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"cafe\u0301 ok", []string{"cafe", "ok"}},
		{"café ok", []string{"café", "ok"}},
		{"snake_case‿tie", []string{"snake_case", "tie"}},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
