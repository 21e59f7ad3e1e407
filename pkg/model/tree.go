package model

import (
	"fmt"
)

// leafFeature marks a node without a split.
const leafFeature = -1

// Node is a binary tree node in flat array form. Samples with
// x[Feature] <= Threshold go Left.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Value     []float64 `json:"value,omitempty"`
	Size      int       `json:"size,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Feature == leafFeature }

// Tree is a decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// validate checks that child indexes point forward so traversal always ends.
func (t Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Feature < 0 || (features > 0 && n.Feature >= features) {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d out of range", i, c)
			}
		}
	}
	return nil
}

// leaf returns the leaf reached by x and its depth.
func (t Tree) leaf(x []float64) (Node, int, error) {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n, depth, nil
		}
		if n.Feature >= len(x) {
			return Node{}, 0, fmt.Errorf("feature index %d out of range for %d inputs", n.Feature, len(x))
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}
