package huffman

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCharacter = errors.New("character has no code")
	ErrTruncatedStream  = errors.New("bit stream ends inside a code")
	ErrInvalidBit       = errors.New("bit stream contains a symbol other than '0' or '1'")
	ErrNoSuchCode       = errors.New("bit sequence matches no code")
	ErrEmptyTree        = errors.New("cannot decode without a tree")
)

// Encode concatenates the code of every character of text in order.
func Encode(text string, table CodeTable) (string, error) {
	var b strings.Builder
	for i, r := range text {
		code, ok := table[r]
		if !ok {
			return "", fmt.Errorf("%w: %q at byte %d", ErrUnknownCharacter, r, i)
		}
		b.WriteString(code)
	}
	return b.String(), nil
}

// Decode walks root once per code in bits and returns the characters reached.
// A single-leaf root decodes every '0' as its character.
func Decode(bits string, root *Node) (string, error) {
	if bits == "" {
		return "", nil
	}
	if root == nil {
		return "", ErrEmptyTree
	}
	if err := validateBits(bits); err != nil {
		return "", err
	}

	var b strings.Builder
	if root.IsLeaf() {
		for i := 0; i < len(bits); i++ {
			if bits[i] != '0' {
				return "", fmt.Errorf("%w: at bit %d", ErrNoSuchCode, i)
			}
			b.WriteRune(root.Char)
		}
		return b.String(), nil
	}

	node := root
	for i := 0; i < len(bits); i++ {
		if bits[i] == '0' {
			node = node.Left
		} else {
			node = node.Right
		}
		if node == nil {
			return "", fmt.Errorf("%w: at bit %d", ErrNoSuchCode, i)
		}
		if node.IsLeaf() {
			b.WriteRune(node.Char)
			node = root
		}
	}
	if node != root {
		return "", fmt.Errorf("%w: %d bits consumed", ErrTruncatedStream, len(bits))
	}
	return b.String(), nil
}

func validateBits(bits string) error {
	for i := 0; i < len(bits); i++ {
		if bits[i] != '0' && bits[i] != '1' {
			return fmt.Errorf("%w: %q at bit %d", ErrInvalidBit, bits[i], i)
		}
	}
	return nil
}
