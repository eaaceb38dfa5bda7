package bpor

import (
	"fmt"

	"github.com/gitrdm/godejafu/internal/conc/dep"
	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Tree owns the explored portion of one campaign's schedule space
// (spec.md §4.7). It exists for the lifetime of a single runTest, not
// across campaigns (spec.md §3, BporNode Lifecycles).
type Tree struct {
	Root     *Node
	Bound    int
	Model    dep.MemModel
	Buffered dep.BufferCheck
}

// NewTree creates an empty Tree bounded by preemptionBound (spec.md §4.7,
// default 2). The root starts with the main thread as its only todo, so the
// first Next yields the initial schedule.
func NewTree(preemptionBound int, model dep.MemModel, buffered dep.BufferCheck) *Tree {
	root := NewRoot()
	root.Todo[ids.MainThread] = false
	return &Tree{Root: root, Bound: preemptionBound, Model: model, Buffered: buffered}
}

// Next extracts the longest schedule prefix composed of already-taken
// decisions followed by exactly one todo decision at the deepest point
// available, ties broken by maximum preemption count (spec.md §4.7).
// Returns ok=false only once every todo is empty at every live node.
func (t *Tree) Next() (prefix []ids.ThreadID, conservative bool, ok bool) {
	var bestNode *Node
	var bestPrefix []ids.ThreadID

	var dfs func(n *Node, pre []ids.ThreadID)
	dfs = func(n *Node, pre []ids.ThreadID) {
		if n.HasTodo() {
			if bestNode == nil || len(pre) > len(bestPrefix) ||
				(len(pre) == len(bestPrefix) && n.Preemption > bestNode.Preemption) {
				bestNode = n
				bestPrefix = append([]ids.ThreadID(nil), pre...)
			}
		}
		for tid, child := range n.Done {
			dfs(child, append(append([]ids.ThreadID(nil), pre...), tid))
		}
	}
	dfs(t.Root, nil)

	if bestNode == nil {
		return nil, false, false
	}
	tid, cons, _ := bestNode.PickTodo()
	return append(bestPrefix, tid), cons, true
}

// Grow threads tr down the tree from the root, descending into matching
// Done children and creating fresh nodes where the trace diverges. It
// returns the path of nodes visited: path[i] is the decision point before
// tr[i] executed, and path[len(tr)] is the node reached after the last
// step (spec.md §4.7).
func (t *Tree) Grow(tr trace.Trace) []*Node {
	path := make([]*Node, 0, len(tr)+1)
	cur := t.Root
	path = append(path, cur)

	for i, entry := range tr {
		tid := entry.Action.Thread
		taken := dep.FromThreadAction(entry.Action)

		if _, asleep := cur.Sleep[tid]; asleep {
			panic(fmt.Sprintf("bpor: implementation invariant violated: thread %d chosen from its own sleep set at step %d", tid, i))
		}

		cur.Taken[tid] = taken
		delete(cur.Todo, tid)

		child, exists := cur.Done[tid]
		if !exists {
			preemption := cur.Preemption
			if entry.Decision.Kind == trace.SwitchTo {
				preemption++
			}
			child = newNode(cur, preemption)
			a := taken
			child.ActionAtNode = &a
			for _, la := range entry.Runnable {
				child.Runnable[la.Thread] = true
			}
			child.Sleep = seedSleep(t.Model, t.Buffered, cur, taken)
			cur.Done[tid] = child
		}
		cur = child
		path = append(path, cur)
	}
	return path
}

// seedSleep implements spec.md §4.7's grow rule: a child's sleep set is
// parent.sleep ∪ parent.taken, filtered to drop any entry dependent (under
// the §4.6 oracle) with the action just taken to reach the child. Asserted
// here by construction rather than checked after the fact (spec.md §9).
func seedSleep(model dep.MemModel, buffered dep.BufferCheck, parent *Node, taken dep.Action) map[ids.ThreadID]dep.Action {
	seeded := map[ids.ThreadID]dep.Action{}
	for tid, a := range parent.Sleep {
		if tid == taken.Thread {
			continue
		}
		if !dep.Dependent(model, a, taken, buffered) {
			seeded[tid] = a
		}
	}
	for tid, a := range parent.Taken {
		if tid == taken.Thread {
			continue
		}
		if !dep.Dependent(model, a, taken, buffered) {
			seeded[tid] = a
		}
	}
	return seeded
}

// Candidate is one backtracking point findBacktrack proposes.
type Candidate struct {
	NodeIndex    int
	Thread       ids.ThreadID
	Action       dep.Action
	Conservative bool
}

// FindBacktrack walks tr looking, for each step i and each thread u visible
// in that step's lookahead, for the nearest earlier step j whose executed
// action is dependent with u's lookahead — the classic DPOR backward race
// search (spec.md §4.7).
func FindBacktrack(model dep.MemModel, buffered dep.BufferCheck, tr trace.Trace) []Candidate {
	var out []Candidate
	for i, entry := range tr {
		for _, la := range entry.Runnable {
			u := la.Thread
			if u == entry.Action.Thread {
				continue
			}
			depU := dep.FromLookahead(la)
			for j := i - 1; j >= 0; j-- {
				if tr[j].Action.Thread == u {
					break
				}
				aj := dep.FromThreadAction(tr[j].Action)
				if dep.Dependent(model, aj, depU, buffered) {
					out = append(out, Candidate{NodeIndex: j, Thread: u, Action: depU})
					break
				}
			}
		}
	}
	return out
}

// InstallBacktrack installs each candidate into path[c.NodeIndex].Todo,
// subject to spec.md §4.7's todo() admission rules: the preemption bound
// must still admit it (exceeding it by exactly one is allowed, marked
// conservative); u must not already be in that node's sleep set (unless
// the candidate is conservative); u must not already be in that node's
// done map. A candidate in that node's ignore set is dropped silently.
func (t *Tree) InstallBacktrack(path []*Node, candidates []Candidate) {
	for _, c := range candidates {
		if c.NodeIndex < 0 || c.NodeIndex >= len(path) {
			continue
		}
		node := path[c.NodeIndex]

		if node.Ignore[c.Thread] {
			continue
		}
		if _, done := node.Done[c.Thread]; done {
			continue
		}

		preemption := node.Preemption + 1 // installing an alternative thread is always a switch
		conservative := preemption > t.Bound
		if preemption > t.Bound+1 {
			continue
		}
		if !conservative {
			if _, asleep := node.Sleep[c.Thread]; asleep {
				continue
			}
		}
		if existing, ok := node.Todo[c.Thread]; ok && existing == conservative {
			continue
		}
		node.Todo[c.Thread] = conservative
	}
}

// PruneCommits clears a node's todo set when every remaining candidate is a
// commit pseudo-thread AND every already-explored child of that node has,
// along every one of its own fully-explored descendant paths, eventually
// executed a barrier action — spec.md §4.7's rule verbatim ("if every todo
// at a node is a commit pseudo-thread and every child has led to an
// eventual barrier anyway, clear the todos"). A barrier flushes every
// pending buffered write regardless of the order the individual commit
// pseudo-threads would have drained them in, so once every already-taken
// branch is known to hit one, the remaining commit-ordering alternatives
// can no longer produce a distinct observable result and are safe to drop.
// A node with no explored children yet, or a child with any still-open
// Todo or a fully-explored leaf that never saw a barrier, fails the check
// and is left untouched — conservatively re-examined after more
// exploration rather than pruned on a guess.
func (t *Tree) PruneCommits() {
	var walk func(n *Node)
	walk = func(n *Node) {
		if len(n.Todo) > 0 && allCommitTodos(n) && everyDoneChildReachesBarrier(n) {
			n.Todo = map[ids.ThreadID]bool{}
		}
		for _, c := range n.Done {
			walk(c)
		}
	}
	walk(t.Root)
}

func allCommitTodos(n *Node) bool {
	for tid := range n.Todo {
		if !ids.IsCommitPseudoThread(tid) {
			return false
		}
	}
	return true
}

// everyDoneChildReachesBarrier reports whether every already-explored Done
// child of n is fully explored (no outstanding Todo anywhere beneath it)
// and has executed a barrier action on every one of its descendant paths.
func everyDoneChildReachesBarrier(n *Node) bool {
	if len(n.Done) == 0 {
		return false
	}
	for _, c := range n.Done {
		seen := c.ActionAtNode != nil && c.ActionAtNode.IsBarrier
		if !subtreeAlwaysReachesBarrier(c, seen) {
			return false
		}
	}
	return true
}

// subtreeAlwaysReachesBarrier reports whether every fully-explored leaf
// beneath n (inclusive) has seen a barrier action somewhere on the path
// from the root, given barrierSeen already reflects whether one occurred
// on the path down to and including n. A node with an outstanding Todo is
// not yet fully explored and fails the check; a leaf with no Todo and no
// Done children is fully explored and passes iff barrierSeen is true.
func subtreeAlwaysReachesBarrier(n *Node, barrierSeen bool) bool {
	if n.HasTodo() {
		return false
	}
	if len(n.Done) == 0 {
		return barrierSeen
	}
	for _, c := range n.Done {
		seen := barrierSeen || (c.ActionAtNode != nil && c.ActionAtNode.IsBarrier)
		if !subtreeAlwaysReachesBarrier(c, seen) {
			return false
		}
	}
	return true
}

// ProcessTrace runs the full grow → findBacktrack → installBacktrack →
// pruneCommits pipeline for one completed execution.
func (t *Tree) ProcessTrace(tr trace.Trace) {
	path := t.Grow(tr)
	candidates := FindBacktrack(t.Model, t.Buffered, tr)
	t.InstallBacktrack(path, candidates)
	t.PruneCommits()
}
