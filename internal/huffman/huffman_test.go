package huffman

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

var samples = []string{
	"a",
	"aaa",
	"ab",
	"abracadabra",
	"hello, world!",
	"The quick brown fox jumps over the lazy dog.",
	"Съешь же ещё этих мягких французских булок",
	"tabs\tand\nnewlines\r\n  spaces",
	"日本語のテキスト、テキスト。",
	strings.Repeat("mississippi ", 40),
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	for _, text := range samples {
		root := BuildTree(text)
		table := DeriveCodes(root)
		encoded, err := Encode(text, table)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		decoded, err := Decode(encoded, root)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if decoded != text {
			t.Errorf("round trip mismatch: got %q, want %q", decoded, text)
		}
	}
}

func TestRoundTripThroughCodeTable(t *testing.T) {
	t.Parallel()
	for _, text := range samples {
		table := DeriveCodes(BuildTree(text))
		encoded, err := Encode(text, table)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		parsed, err := ParseCodeTable(table.Strings())
		if err != nil {
			t.Fatalf("ParseCodeTable: %v", err)
		}
		root, err := TreeFromCodes(parsed)
		if err != nil {
			t.Fatalf("TreeFromCodes: %v", err)
		}
		decoded, err := Decode(encoded, root)
		if err != nil {
			t.Fatalf("Decode(%q): %v", text, err)
		}
		if decoded != text {
			t.Errorf("got %q, want %q", decoded, text)
		}
	}
}

func TestPrefixProperty(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcdefghijklmnopqrstuvwxyz ,.!?АБВ")
	texts := append([]string{}, samples...)
	for i := 0; i < 50; i++ {
		n := 1 + rng.Intn(200)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteRune(alphabet[rng.Intn(1+rng.Intn(len(alphabet)))])
		}
		texts = append(texts, b.String())
	}

	for _, text := range texts {
		table := DeriveCodes(BuildTree(text))
		for a, ca := range table {
			if ca == "" {
				t.Fatalf("empty code for %q in %q", a, text)
			}
			for b, cb := range table {
				if a != b && strings.HasPrefix(cb, ca) {
					t.Fatalf("code %q for %q is a prefix of %q for %q", ca, a, cb, b)
				}
			}
		}
	}
}

// optimalCost enumerates every full binary tree over weights by trying all
// pairwise merges; the cost of a tree is the sum of its merged weights.
func optimalCost(weights []int) int {
	if len(weights) <= 1 {
		return 0
	}
	best := -1
	for i := 0; i < len(weights); i++ {
		for j := i + 1; j < len(weights); j++ {
			merged := weights[i] + weights[j]
			rest := make([]int, 0, len(weights)-1)
			for k, w := range weights {
				if k != i && k != j {
					rest = append(rest, w)
				}
			}
			rest = append(rest, merged)
			cost := merged + optimalCost(rest)
			if best < 0 || cost < best {
				best = cost
			}
		}
	}
	return best
}

func TestOptimality(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdef")
	for trial := 0; trial < 40; trial++ {
		size := 2 + rng.Intn(len(alphabet)-1)
		var b strings.Builder
		for _, r := range alphabet[:size] {
			b.WriteString(strings.Repeat(string(r), 1+rng.Intn(12)))
		}
		text := b.String()

		freq, order := Frequencies(text)
		weights := make([]int, 0, len(order))
		for _, r := range order {
			weights = append(weights, freq[r])
		}
		got := Cost(freq, DeriveCodes(BuildTree(text)))
		want := optimalCost(weights)
		if got != want {
			t.Errorf("text %q: huffman cost %d, optimal %d", text, got, want)
		}
	}
}

func TestSingleCharacter(t *testing.T) {
	root := BuildTree("aaa")
	if root == nil || !root.IsLeaf() {
		t.Fatalf("expected a single-leaf tree, got %+v", root)
	}
	if root.Freq != 3 {
		t.Errorf("leaf freq = %d, want 3", root.Freq)
	}
	table := DeriveCodes(root)
	if table['a'] != "0" {
		t.Fatalf("code(a) = %q, want \"0\"", table['a'])
	}
	encoded, err := Encode("aaa", table)
	if err != nil {
		t.Fatal(err)
	}
	if encoded != "000" {
		t.Errorf("Encode = %q, want \"000\"", encoded)
	}
	decoded, err := Decode(encoded, root)
	if err != nil || decoded != "aaa" {
		t.Errorf("Decode = %q, %v", decoded, err)
	}
}

func TestEmptyInput(t *testing.T) {
	if BuildTree("") != nil {
		t.Error("BuildTree(\"\") should be nil")
	}
	if len(DeriveCodes(nil)) != 0 {
		t.Error("DeriveCodes(nil) should be empty")
	}
	if got, err := Decode("", nil); err != nil || got != "" {
		t.Errorf("Decode(\"\", nil) = %q, %v", got, err)
	}
	if _, err := Decode("01", nil); !errors.Is(err, ErrEmptyTree) {
		t.Errorf("error = %v, want ErrEmptyTree", err)
	}
}

func TestDeterministicTieBreak(t *testing.T) {
	// all four characters share a frequency; first-appearance order decides.
	table := DeriveCodes(BuildTree("abcd"))
	want := CodeTable{'a': "00", 'b': "01", 'c': "10", 'd': "11"}
	for r, code := range want {
		if table[r] != code {
			t.Errorf("code(%q) = %q, want %q", r, table[r], code)
		}
	}
	for i := 0; i < 20; i++ {
		again := DeriveCodes(BuildTree("abcd"))
		for r, code := range table {
			if again[r] != code {
				t.Fatalf("tree construction is not deterministic")
			}
		}
	}
}

func TestLowestFrequencyPoppedLeft(t *testing.T) {
	// b:1 and a:2 merge first with b on the left; c:4 then joins on the right.
	root := BuildTree("aabcccc")
	if root.Freq != 7 {
		t.Fatalf("root freq = %d, want 7", root.Freq)
	}
	if root.Left.Freq != 3 || root.Right.Char != 'c' {
		t.Fatalf("unexpected root children: left=%+v right=%+v", root.Left, root.Right)
	}
	if root.Left.Left.Char != 'b' || root.Left.Right.Char != 'a' {
		t.Errorf("first-popped node should be the left child")
	}
}

func TestEncodeUnknownCharacter(t *testing.T) {
	table := DeriveCodes(BuildTree("abc"))
	if _, err := Encode("abz", table); !errors.Is(err, ErrUnknownCharacter) {
		t.Errorf("error = %v, want ErrUnknownCharacter", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	root := BuildTree("aabcccc") // c=1, b=00, a=01
	tests := []struct {
		name string
		bits string
		want error
	}{
		{"truncated", "10", ErrTruncatedStream},
		{"invalid symbol", "1x", ErrInvalidBit},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.bits, root); !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if _, err := Decode("01", BuildTree("zz")); !errors.Is(err, ErrNoSuchCode) {
		t.Errorf("single leaf with '1': error = %v, want ErrNoSuchCode", err)
	}
}

func TestTreeFromCodesRejectsNonPrefixTable(t *testing.T) {
	tests := []CodeTable{
		{'a': "0", 'b': "01"},
		{'a': "01", 'b': "0"},
		{'a': "1", 'b': "1"},
	}
	for _, table := range tests {
		if _, err := TreeFromCodes(table); !errors.Is(err, ErrNotPrefixCode) {
			t.Errorf("TreeFromCodes(%v) error = %v, want ErrNotPrefixCode", table, err)
		}
	}
}

func TestParseCodeTableRejectsBadKeys(t *testing.T) {
	bad := []map[string]string{
		{"ab": "0"},
		{"": "0"},
		{"a": ""},
		{"a": "012"},
	}
	for _, m := range bad {
		if _, err := ParseCodeTable(m); !errors.Is(err, ErrInvalidTable) {
			t.Errorf("ParseCodeTable(%v) error = %v, want ErrInvalidTable", m, err)
		}
	}
}

func TestPackUnpack(t *testing.T) {
	t.Parallel()
	for _, bits := range []string{"", "0", "1", "10110", "11111111", "101010101", strings.Repeat("0110", 33)} {
		packed, err := Pack(bits)
		if err != nil {
			t.Fatalf("Pack(%q): %v", bits, err)
		}
		if want := (len(bits) + 7) / 8; len(packed) != want {
			t.Errorf("Pack(%q) produced %d bytes, want %d", bits, len(packed), want)
		}
		got, err := Unpack(packed, len(bits))
		if err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		if got != bits {
			t.Errorf("Unpack(Pack(%q)) = %q", bits, got)
		}
	}
	if packed, _ := Pack("1"); packed[0] != 0x80 {
		t.Errorf("Pack(\"1\") = %08b, want 10000000", packed[0])
	}
	if _, err := Unpack([]byte{0xff}, 9); !errors.Is(err, ErrTruncatedStream) {
		t.Errorf("error = %v, want ErrTruncatedStream", err)
	}
	if _, err := Pack("012"); !errors.Is(err, ErrInvalidBit) {
		t.Errorf("error = %v, want ErrInvalidBit", err)
	}
}
