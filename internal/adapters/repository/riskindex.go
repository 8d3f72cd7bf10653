package repository

import (
	"math/rand/v2"
)

// riskIndex orders customers by probability DESC, then id ASC, so an
// in-order walk yields the at-risk ranking. It is a treap with random
// priorities and subtree sizes. Not safe for concurrent use; the owning
// store serializes access.
type riskIndex struct {
	root *riskNode
}

type riskNode struct {
	id    int64
	prob  float64
	prio  uint64
	left  *riskNode
	right *riskNode
	size  int
}

func nsize(n *riskNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *riskNode) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether (aProb, aID) ranks ahead of (bProb, bID).
func before(aProb float64, aID int64, bProb float64, bID int64) bool {
	if aProb != bProb {
		return aProb > bProb
	}
	return aID < bID
}

func rotateRight(y *riskNode) *riskNode {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *riskNode) *riskNode {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func (t *riskIndex) insert(id int64, prob float64) {
	t.root = insertRisk(t.root, &riskNode{id: id, prob: prob, prio: rand.Uint64(), size: 1})
}

func insertRisk(n, nn *riskNode) *riskNode {
	if n == nil {
		return nn
	}
	if before(nn.prob, nn.id, n.prob, n.id) {
		n.left = insertRisk(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insertRisk(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func (t *riskIndex) remove(id int64, prob float64) {
	t.root = removeRisk(t.root, id, prob)
}

func removeRisk(n *riskNode, id int64, prob float64) *riskNode {
	if n == nil {
		return nil
	}
	switch {
	case n.id == id && n.prob == prob:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = removeRisk(n.right, id, prob)
		} else {
			n = rotateLeft(n)
			n.left = removeRisk(n.left, id, prob)
		}
	case before(prob, id, n.prob, n.id):
		n.left = removeRisk(n.left, id, prob)
	default:
		n.right = removeRisk(n.right, id, prob)
	}
	fix(n)
	return n
}

// top appends up to limit ids in rank order.
func (t *riskIndex) top(limit int) []int64 {
	out := make([]int64, 0, min(limit, nsize(t.root)))
	var walk func(n *riskNode)
	walk = func(n *riskNode) {
		if n == nil || len(out) >= limit {
			return
		}
		walk(n.left)
		if len(out) < limit {
			out = append(out, n.id)
		}
		walk(n.right)
	}
	walk(t.root)
	return out
}

// countAbove returns how many entries have probability > threshold.
// Entries above the threshold form a prefix of the ranking, so this is
// a single root-to-leaf descent.
func (t *riskIndex) countAbove(threshold float64) int {
	count := 0
	for n := t.root; n != nil; {
		if n.prob > threshold {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

func (t *riskIndex) count() int { return nsize(t.root) }
