package huffman

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

var (
	ErrNotPrefixCode = errors.New("code table is not a prefix code")
	ErrInvalidTable  = errors.New("invalid code table")
)

// CodeTable maps each character to its code, a string of '0' and '1'.
type CodeTable map[rune]string

// DeriveCodes walks root and assigns every leaf the path that reaches it,
// '0' for left and '1' for right. A single-leaf tree gets the code "0".
func DeriveCodes(root *Node) CodeTable {
	table := make(CodeTable)
	if root == nil {
		return table
	}
	if root.IsLeaf() {
		table[root.Char] = "0"
		return table
	}

	type frame struct {
		node *Node
		path string
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node.IsLeaf() {
			table[f.node.Char] = f.path
			continue
		}
		if f.node.Right != nil {
			stack = append(stack, frame{node: f.node.Right, path: f.path + "1"})
		}
		if f.node.Left != nil {
			stack = append(stack, frame{node: f.node.Left, path: f.path + "0"})
		}
	}
	return table
}

// Strings returns the table keyed by the characters as strings, the form
// used on the wire.
func (t CodeTable) Strings() map[string]string {
	out := make(map[string]string, len(t))
	for r, code := range t {
		out[string(r)] = code
	}
	return out
}

// ParseCodeTable converts a wire-form table back into a CodeTable. Every key
// must be exactly one character and every code a non-empty binary string.
func ParseCodeTable(m map[string]string) (CodeTable, error) {
	table := make(CodeTable, len(m))
	for key, code := range m {
		r, size := utf8.DecodeRuneInString(key)
		if size == 0 || size != len(key) || (r == utf8.RuneError && size == 1) {
			return nil, fmt.Errorf("%w: key %q is not a single character", ErrInvalidTable, key)
		}
		if err := validateBits(code); err != nil || code == "" {
			return nil, fmt.Errorf("%w: code %q for %q", ErrInvalidTable, code, key)
		}
		table[r] = code
	}
	return table, nil
}

// TreeFromCodes rebuilds a decoding tree from table. Nodes carry no
// frequencies.
func TreeFromCodes(table CodeTable) (*Node, error) {
	if len(table) == 0 {
		return nil, nil
	}
	chars := make([]rune, 0, len(table))
	for r := range table {
		chars = append(chars, r)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })

	root := &Node{}
	assigned := make(map[*Node]bool, len(chars))
	for _, r := range chars {
		code := table[r]
		if code == "" {
			return nil, fmt.Errorf("%w: empty code for %q", ErrInvalidTable, r)
		}
		node := root
		for i := 0; i < len(code); i++ {
			if assigned[node] {
				return nil, fmt.Errorf("%w: a code is a prefix of %q", ErrNotPrefixCode, code)
			}
			var next **Node
			switch code[i] {
			case '0':
				next = &node.Left
			case '1':
				next = &node.Right
			default:
				return nil, fmt.Errorf("%w: code %q", ErrInvalidBit, code)
			}
			if *next == nil {
				*next = &Node{}
			}
			node = *next
		}
		if assigned[node] || !node.IsLeaf() {
			return nil, fmt.Errorf("%w: %q is a prefix of or equal to another code", ErrNotPrefixCode, code)
		}
		node.Char = r
		assigned[node] = true
	}
	return root, nil
}

// Cost returns the encoded length in bits of a text with the given
// character frequencies under table.
func Cost(freq map[rune]int, table CodeTable) int {
	bits := 0
	for r, f := range freq {
		bits += f * len(table[r])
	}
	return bits
}
