// Package mem implements the mutable Ref and its per-model (SC/TSO/PSO)
// write-visibility semantics (spec.md §3, §4.3). The global cell holds the
// last committed value; buffered writes are only visible to the writing
// thread until a Commit (possibly injected as a pseudo-thread by the
// driver) or a barrier flushes them.
package mem

import (
	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Model selects the memory model in effect for a World.
type Model int

const (
	SequentialConsistency Model = iota
	TotalStoreOrder
	PartialStoreOrder
)

type refState struct {
	global      action.Value
	commitCount int64
}

// tso entries preserve one FIFO per writing thread, spanning every ref that
// thread has written — draining must respect this order (spec.md §3,
// WriteBuffer: "Under TSO, one FIFO per writing thread").
type tsoEntry struct {
	Ref   ids.RefID
	Value action.Value
}

type psoKey struct {
	Thread ids.ThreadID
	Ref    ids.RefID
}

// Memory owns every Ref and write buffer in a World. It has no internal
// locking: the single-stepper is the only caller, and calls it from one
// goroutine at a time (spec.md §5).
type Memory struct {
	model Model
	refs  map[ids.RefID]*refState

	tso map[ids.ThreadID][]tsoEntry
	pso map[psoKey][]action.Value
}

// New creates an empty Memory under the given model.
func New(model Model) *Memory {
	return &Memory{
		model: model,
		refs:  map[ids.RefID]*refState{},
		tso:   map[ids.ThreadID][]tsoEntry{},
		pso:   map[psoKey][]action.Value{},
	}
}

// Model reports the memory model this Memory enforces.
func (m *Memory) Model() Model { return m.model }

// NewRef registers a Ref under the caller-issued id, initialised to v.
func (m *Memory) NewRef(id ids.RefID, v action.Value) {
	m.refs[id] = &refState{global: v}
}

// ReadRef returns what thread t currently observes for ref r: its own
// latest buffered write if one exists (TSO: scanning its cross-ref FIFO
// back-to-front for an entry on r; PSO: the tail of its (t,r) FIFO),
// otherwise the committed global value (spec.md §3).
func (m *Memory) ReadRef(t ids.ThreadID, r ids.RefID) action.Value {
	switch m.model {
	case TotalStoreOrder:
		entries := m.tso[t]
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Ref == r {
				return entries[i].Value
			}
		}
	case PartialStoreOrder:
		if q := m.pso[psoKey{t, r}]; len(q) > 0 {
			return q[len(q)-1]
		}
	}
	return m.refs[r].global
}

// WriteRef records an unsynchronised write by thread t to ref r. Under SC
// it updates the global cell immediately (no buffer is ever used, no
// Commit action is ever emitted, per spec.md §4.3); under TSO/PSO it
// appends to the appropriate buffer.
func (m *Memory) WriteRef(t ids.ThreadID, r ids.RefID, v action.Value) {
	switch m.model {
	case SequentialConsistency:
		m.refs[r].global = v
	case TotalStoreOrder:
		m.tso[t] = append(m.tso[t], tsoEntry{Ref: r, Value: v})
	case PartialStoreOrder:
		key := psoKey{t, r}
		m.pso[key] = append(m.pso[key], v)
	}
}

// HasBufferedWrite reports whether ref r has any outstanding buffered
// write from any thread — used by the dependency oracle's TSO/PSO barrier
// rule (spec.md §4.6).
func (m *Memory) HasBufferedWrite(r ids.RefID) bool {
	switch m.model {
	case TotalStoreOrder:
		for _, entries := range m.tso {
			for _, e := range entries {
				if e.Ref == r {
					return true
				}
			}
		}
	case PartialStoreOrder:
		for k, q := range m.pso {
			if k.Ref == r && len(q) > 0 {
				return true
			}
		}
	}
	return false
}

// PendingCommit names one outstanding buffered write a commit
// pseudo-thread could drain.
type PendingCommit struct {
	Thread ids.ThreadID
	Ref    ids.RefID
}

// PendingCommits lists every (thread, ref) pair with an oldest outstanding
// buffered write — one commit pseudo-thread choice per entry (spec.md
// §4.3, §9 "Commit as pseudo-thread").
func (m *Memory) PendingCommits() []PendingCommit {
	var out []PendingCommit
	switch m.model {
	case TotalStoreOrder:
		for t, entries := range m.tso {
			if len(entries) > 0 {
				out = append(out, PendingCommit{Thread: t, Ref: entries[0].Ref})
			}
		}
	case PartialStoreOrder:
		for k, q := range m.pso {
			if len(q) > 0 {
				out = append(out, PendingCommit{Thread: k.Thread, Ref: k.Ref})
			}
		}
	}
	return out
}

// Commit drains the oldest buffered write of thread t matching ref r into
// the global cell. It is the stepper's implementation of the Commit
// action (spec.md §4.1, §4.3); r must match the head of t's FIFO (TSO) or
// t's (t,r) FIFO must be non-empty (PSO) — both are guaranteed by only
// ever constructing Commit actions from PendingCommits.
func (m *Memory) Commit(t ids.ThreadID, r ids.RefID) bool {
	switch m.model {
	case TotalStoreOrder:
		entries := m.tso[t]
		if len(entries) == 0 || entries[0].Ref != r {
			return false
		}
		m.refs[r].global = entries[0].Value
		m.tso[t] = entries[1:]
		return true
	case PartialStoreOrder:
		key := psoKey{t, r}
		q := m.pso[key]
		if len(q) == 0 {
			return false
		}
		m.refs[r].global = q[0]
		m.pso[key] = q[1:]
		return true
	}
	return false
}

// FlushThread drains every buffered write of thread t, in order, into the
// global cells — the effect of StoreLoadBarrier/WriteBarrier (spec.md
// §4.1, §4.3).
func (m *Memory) FlushThread(t ids.ThreadID) {
	switch m.model {
	case TotalStoreOrder:
		for _, e := range m.tso[t] {
			m.refs[e.Ref].global = e.Value
		}
		delete(m.tso, t)
	case PartialStoreOrder:
		for k, q := range m.pso {
			if k.Thread != t {
				continue
			}
			for _, v := range q {
				m.refs[k.Ref].global = v
			}
			delete(m.pso, k)
		}
	}
}

// FlushRef drains every thread's buffered writes to ref r, oldest first
// per thread, threads visited in ascending ThreadID order for
// determinism — required before any synchronising access (ModifyRef, CAS)
// to r by any thread (spec.md §4.3).
func (m *Memory) FlushRef(r ids.RefID) {
	switch m.model {
	case TotalStoreOrder:
		threads := sortedThreadKeys(m.tso)
		for _, t := range threads {
			entries := m.tso[t]
			kept := entries[:0]
			for _, e := range entries {
				if e.Ref == r {
					m.refs[r].global = e.Value
				} else {
					kept = append(kept, e)
				}
			}
			m.tso[t] = kept
		}
	case PartialStoreOrder:
		key0 := r
		threads := sortedPsoThreads(m.pso, key0)
		for _, t := range threads {
			key := psoKey{t, r}
			for _, v := range m.pso[key] {
				m.refs[r].global = v
			}
			delete(m.pso, key)
		}
	}
}

func sortedThreadKeys(buffers map[ids.ThreadID][]tsoEntry) []ids.ThreadID {
	out := make([]ids.ThreadID, 0, len(buffers))
	for t := range buffers {
		out = append(out, t)
	}
	sortThreadIDs(out)
	return out
}

func sortedPsoThreads(buffers map[psoKey][]action.Value, r ids.RefID) []ids.ThreadID {
	var out []ids.ThreadID
	for k := range buffers {
		if k.Ref == r {
			out = append(out, k.Thread)
		}
	}
	sortThreadIDs(out)
	return out
}

func sortThreadIDs(xs []ids.ThreadID) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// ModifyRef applies fn to the current global value of r (after flushing
// every thread's pending writes to r, since this is a synchronising
// access) and bumps r's commit count (spec.md §9).
func (m *Memory) ModifyRef(r ids.RefID, fn func(action.Value) action.Value) action.Value {
	m.FlushRef(r)
	rs := m.refs[r]
	rs.global = fn(rs.global)
	rs.commitCount++
	return rs.global
}

// ReadForCas flushes r and returns a ticket capturing its current value and
// commit count.
func (m *Memory) ReadForCas(r ids.RefID) action.CasTicket {
	m.FlushRef(r)
	rs := m.refs[r]
	return action.CasTicket{Ref: r, Value: rs.global, CommitCount: rs.commitCount}
}

// Cas2 redeems two tickets together, from the single-stepper's point of
// view atomically: it succeeds only if both refs' commit counts still
// match their tickets, in which case both new values are installed and
// both commit counts bump; otherwise neither ref is touched (spec.md §9,
// CasRef2 "performs the same check/swap across two refs atomically").
func (m *Memory) Cas2(t1 action.CasTicket, v1 action.Value, t2 action.CasTicket, v2 action.Value) bool {
	m.FlushRef(t1.Ref)
	m.FlushRef(t2.Ref)
	r1, r2 := m.refs[t1.Ref], m.refs[t2.Ref]
	if r1.commitCount != t1.CommitCount || r2.commitCount != t2.CommitCount {
		return false
	}
	r1.global = v1
	r1.commitCount++
	r2.global = v2
	r2.commitCount++
	return true
}

// Cas redeems ticket: it succeeds iff the ref's commit count has not
// advanced since the ticket was read (spec.md §9, the recommended CAS
// resolution), installing newValue and bumping the commit count on
// success.
func (m *Memory) Cas(ticket action.CasTicket, newValue action.Value) (ok bool, current action.CasTicket) {
	m.FlushRef(ticket.Ref)
	rs := m.refs[ticket.Ref]
	if rs.commitCount != ticket.CommitCount {
		return false, action.CasTicket{Ref: ticket.Ref, Value: rs.global, CommitCount: rs.commitCount}
	}
	rs.global = newValue
	rs.commitCount++
	return true, action.CasTicket{Ref: ticket.Ref, Value: newValue, CommitCount: rs.commitCount}
}
