// Package huffman builds optimal prefix codes over the characters of a single
// text and encodes or decodes that text as a string of '0' and '1' symbols.
//
// Trees are deterministic: nodes of equal frequency leave the priority queue
// in insertion order, with leaves inserted in order of their character's first
// appearance and merged nodes after every leaf.
package huffman

import "container/heap"

// Node is a leaf holding one character, or an internal node owning exactly
// two children and the sum of their frequencies.
type Node struct {
	Char  rune
	Freq  int
	Left  *Node
	Right *Node

	seq int
}

// IsLeaf reports whether n carries a character.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// nodeQueue is a min-heap ordered by frequency, then insertion sequence.
type nodeQueue []*Node

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].Freq != q[j].Freq {
		return q[i].Freq < q[j].Freq
	}
	return q[i].seq < q[j].seq
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*Node)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return n
}

// Frequencies counts every character of text, including whitespace and
// punctuation, and returns the distinct characters in first-appearance order.
func Frequencies(text string) (map[rune]int, []rune) {
	freq := make(map[rune]int)
	order := make([]rune, 0)
	for _, r := range text {
		if _, seen := freq[r]; !seen {
			order = append(order, r)
		}
		freq[r]++
	}
	return freq, order
}

// BuildTree returns the Huffman tree of text, or nil when text is empty.
// The first node popped in each merge becomes the left child.
func BuildTree(text string) *Node {
	if text == "" {
		return nil
	}
	freq, order := Frequencies(text)

	q := make(nodeQueue, 0, len(order))
	seq := 0
	for _, r := range order {
		q = append(q, &Node{Char: r, Freq: freq[r], seq: seq})
		seq++
	}
	heap.Init(&q)

	for q.Len() > 1 {
		left := heap.Pop(&q).(*Node)
		right := heap.Pop(&q).(*Node)
		heap.Push(&q, &Node{
			Freq:  left.Freq + right.Freq,
			Left:  left,
			Right: right,
			seq:   seq,
		})
		seq++
	}
	return q[0]
}
