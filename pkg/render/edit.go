package render

import (
	"fmt"
	"sort"
)

// EditOp identifies the kind of a list edit.
type EditOp uint8

const (
	EditRemove EditOp = iota + 1 // Remove the item at From
	EditInsert                   // Insert a new item at To
	EditMove                     // Move the item at From to To
)

// String returns the name of the edit op.
func (op EditOp) String() string {
	switch op {
	case EditRemove:
		return "Remove"
	case EditInsert:
		return "Insert"
	case EditMove:
		return "Move"
	default:
		return fmt.Sprintf("EditOp(%d)", op)
	}
}

// Edit is one step of an EditScript. From is the index in the previous
// sequence (Remove, Move); To is the index in the next one (Insert, Move).
type Edit struct {
	Op   EditOp `json:"op"`
	Key  string `json:"key"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// String implements fmt.Stringer.
func (e Edit) String() string {
	switch e.Op {
	case EditRemove:
		return fmt.Sprintf("Remove(%s@%d)", e.Key, e.From)
	case EditInsert:
		return fmt.Sprintf("Insert(%s@%d)", e.Key, e.To)
	default:
		return fmt.Sprintf("Move(%s %d->%d)", e.Key, e.From, e.To)
	}
}

// EditScript transforms one keyed sequence into another. Removes come
// first in descending From order, then moves, then inserts in ascending To
// order. Items not mentioned keep their relative order.
type EditScript []Edit

// Counts returns the number of removes, inserts and moves.
func (s EditScript) Counts() (removes, inserts, moves int) {
	for _, e := range s {
		switch e.Op {
		case EditRemove:
			removes++
		case EditInsert:
			inserts++
		case EditMove:
			moves++
		}
	}
	return
}

// Diff computes the edit script from prev to next. Keys must be unique
// within each sequence.
//
// Surviving keys that form the longest increasing run of new positions
// stay in place; every other survivor is moved. When two keys swap places
// that is a single Move: the later key stays and the earlier one moves.
func Diff(prev, next []string) EditScript {
	nextIdx := make(map[string]int, len(next))
	for i, k := range next {
		nextIdx[k] = i
	}
	prevIdx := make(map[string]int, len(prev))
	for i, k := range prev {
		prevIdx[k] = i
	}

	var script EditScript

	// Removals, highest index first so earlier indices stay valid.
	for i := len(prev) - 1; i >= 0; i-- {
		if _, ok := nextIdx[prev[i]]; !ok {
			script = append(script, Edit{Op: EditRemove, Key: prev[i], From: i, To: -1})
		}
	}

	// Survivors in previous order, with their new positions.
	var from, to []int
	for i, k := range prev {
		if j, ok := nextIdx[k]; ok {
			from = append(from, i)
			to = append(to, j)
		}
	}
	stay := make([]bool, len(to))
	for _, i := range longestIncreasing(to) {
		stay[i] = true
	}
	var moves []Edit
	for i := range to {
		if !stay[i] {
			moves = append(moves, Edit{Op: EditMove, Key: prev[from[i]], From: from[i], To: to[i]})
		}
	}
	sort.Slice(moves, func(a, b int) bool { return moves[a].To < moves[b].To })
	script = append(script, moves...)

	for j, k := range next {
		if _, ok := prevIdx[k]; !ok {
			script = append(script, Edit{Op: EditInsert, Key: k, From: -1, To: j})
		}
	}
	return script
}

// longestIncreasing returns the positions in seq of one longest strictly
// increasing subsequence. Ties resolve to the subsequence ending with the
// smallest values, which keeps later elements in place.
func longestIncreasing(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	// tails[k] is the position of the smallest tail of an increasing run
	// of length k+1; prev links each position to its predecessor.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		k := sort.Search(len(tails), func(k int) bool { return seq[tails[k]] >= v })
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}
	out := make([]int, len(tails))
	for i, k := len(tails)-1, tails[len(tails)-1]; i >= 0; i-- {
		out[i] = k
		k = prev[k]
	}
	return out
}

// duplicateKey returns the first key that appears twice.
func duplicateKey(keys []string) (string, bool) {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return k, true
		}
		seen[k] = struct{}{}
	}
	return "", false
}
