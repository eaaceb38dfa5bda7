// Package bpor implements the BPOR tree and scheduling driver (spec.md
// §4.7): the structure that records which schedule prefixes have been
// explored, which backtracking points remain, and the preemption bound
// that keeps exploration finite.
package bpor

import (
	"github.com/gitrdm/godejafu/internal/conc/dep"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Node is one decision point in the explored schedule space (spec.md §3,
// BporNode). The root's ActionAtNode is nil; every other node's is set to
// the action that was taken to reach it from its parent.
type Node struct {
	Runnable map[ids.ThreadID]bool
	// Todo maps a candidate thread to whether installing it here was a
	// conservative addition (forced by the preemption bound) rather than a
	// discovered race.
	Todo   map[ids.ThreadID]bool
	Ignore map[ids.ThreadID]bool
	Done   map[ids.ThreadID]*Node
	Sleep  map[ids.ThreadID]dep.Action
	Taken  map[ids.ThreadID]dep.Action

	ActionAtNode *dep.Action
	// Preemption is the preemption count of the prefix that reaches this
	// node from the root (spec.md §4.7, "preemption count = number of
	// decisions where the scheduler switched... ").
	Preemption int
	Parent     *Node
}

func newNode(parent *Node, preemption int) *Node {
	return &Node{
		Runnable: map[ids.ThreadID]bool{},
		Todo:     map[ids.ThreadID]bool{},
		Ignore:   map[ids.ThreadID]bool{},
		Done:     map[ids.ThreadID]*Node{},
		Sleep:    map[ids.ThreadID]dep.Action{},
		Taken:    map[ids.ThreadID]dep.Action{},
		Parent:   parent,
		Preemption: preemption,
	}
}

// NewRoot creates the tree's root node (no ActionAtNode, preemption 0).
func NewRoot() *Node {
	return newNode(nil, 0)
}

// HasTodo reports whether this node has any outstanding candidate.
func (n *Node) HasTodo() bool {
	return len(n.Todo) > 0
}

// PickTodo returns one todo thread deterministically: the lowest user
// ThreadID if any user thread is in Todo, otherwise the lowest commit
// pseudo-thread ID. Commit pseudo-threads, with negative IDs, sort first,
// so this explicit preference is what defers them, per spec.md §4.7's
// "prefer user-thread prefixes unless only commits remain".
func (n *Node) PickTodo() (ids.ThreadID, bool, bool) {
	var userBest *ids.ThreadID
	var commitBest *ids.ThreadID
	for tid := range n.Todo {
		t := tid
		if ids.IsCommitPseudoThread(t) {
			if commitBest == nil || t < *commitBest {
				commitBest = &t
			}
		} else if userBest == nil || t < *userBest {
			userBest = &t
		}
	}
	if userBest != nil {
		return *userBest, n.Todo[*userBest], true
	}
	if commitBest != nil {
		return *commitBest, n.Todo[*commitBest], true
	}
	return 0, false, false
}
