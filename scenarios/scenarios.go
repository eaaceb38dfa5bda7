// Package scenarios ships the runnable S1–S6 programs from spec.md §8 as a
// registry, the minimal supplement spec.md §1 leaves room for ("out of
// scope: autocheck wrapper" — the predicate DSL is out, but a plain
// runnable-scenario registry is not).
package scenarios

import (
	"errors"

	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/mem"
	"github.com/gitrdm/godejafu/internal/conc/prog"
	"github.com/gitrdm/godejafu/internal/ids"
	"github.com/gitrdm/godejafu/schedtest"
)

// ErrKilled is the sentinel async-exception payload S6's kill delivers.
var ErrKilled = errors.New("killed")

// Scenario is one named, runnable program plus the Config its expected
// property was stated against.
type Scenario struct {
	Name        string
	Description string
	Expected    string
	Build       func() action.Action
	Config      schedtest.Config
}

// Registry maps scenario name to Scenario, in the order spec.md §8 lists
// them.
type Registry struct {
	order  []string
	byName map[string]Scenario
}

// NewRegistry builds the registry of S1–S6.
func NewRegistry() *Registry {
	r := &Registry{byName: map[string]Scenario{}}
	for _, s := range []Scenario{s1(), s2(), s3(), s4(), s5(), s6()} {
		r.order = append(r.order, s.Name)
		r.byName[s.Name] = s
	}
	return r
}

// Get looks up a scenario by name.
func (r *Registry) Get(name string) (Scenario, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names lists every registered scenario name, in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func baseConfig(model mem.Model) schedtest.Config {
	return schedtest.Config{Model: model, PreemptionBound: 2, MaxExecutions: 200}
}

// s1 — "2-deadlock": an empty SVar with two takers and nobody ever putting.
func s1() Scenario {
	return Scenario{
		Name:        "2-deadlock",
		Description: "newEmpty v; fork (take v); fork (take v)",
		Expected:    "deadlocks: both forked takers block forever on an SVar nobody ever fills",
		Config:      baseConfig(mem.SequentialConsistency),
		Build: func() action.Action {
			return prog.NewVar(func(v ids.VarID) action.Action {
				return prog.Fork(
					prog.Take(v, func(action.Value) action.Action { return prog.Stop() }),
					func(ids.ThreadID) action.Action {
						return prog.Fork(
							prog.Take(v, func(action.Value) action.Action { return prog.Stop() }),
							func(ids.ThreadID) action.Action {
								return prog.Return(nil)
							},
						)
					},
				)
			})
		},
	}
}

// s2 — dining philosophers, N=3: each philosopher i takes fork i then fork
// (i+1)%3, runs a no-op critical section, releases in reverse order. The
// naive (non-asymmetric) acquire order can deadlock if every philosopher
// grabs its first fork before any grabs its second.
func s2() Scenario {
	const n = 3
	return Scenario{
		Name:        "dining-philosophers-3",
		Description: "3 philosophers cyclically take two forks, critical section, release in reverse",
		Expected:    "deadlocks in at least one schedule under preemption bound >= 2; completes in others",
		Config:      baseConfig(mem.SequentialConsistency),
		Build: func() action.Action {
			return buildForks(n, 0, nil)
		},
	}
}

// buildForks allocates the n fork SVars (each initially full, representing
// an available fork) one at a time, then builds the n philosopher threads.
func buildForks(n int, i int, forks []ids.VarID) action.Action {
	if i < n {
		return prog.NewVar(func(v ids.VarID) action.Action {
			return prog.Put(v, struct{}{}, buildForks(n, i+1, append(forks, v)))
		})
	}
	return forkPhilosophers(n, 0, forks)
}

func forkPhilosophers(n, i int, forks []ids.VarID) action.Action {
	if i == n {
		return prog.Return(nil)
	}
	left := forks[i]
	right := forks[(i+1)%n]
	body := prog.Take(left, func(action.Value) action.Action {
		return prog.Take(right, func(action.Value) action.Action {
			return prog.Put(right, struct{}{}, prog.Put(left, struct{}{}, prog.Stop()))
		})
	})
	return prog.Fork(body, func(ids.ThreadID) action.Action {
		return forkPhilosophers(n, i+1, forks)
	})
}

// s3 — "forgotten unlock": one thread locks (fills an empty SVar) and never
// releases; another tries to lock and blocks forever.
func s3() Scenario {
	return Scenario{
		Name:        "forgotten-unlock",
		Description: "thread acquires a lock (put on empty SVar), forgets to release; another tries to acquire",
		Expected:    "always deadlocks",
		Config:      baseConfig(mem.SequentialConsistency),
		Build: func() action.Action {
			return prog.NewVar(func(lock ids.VarID) action.Action {
				return prog.Fork(
					prog.Put(lock, struct{}{}, prog.Stop()),
					func(ids.ThreadID) action.Action {
						return prog.Fork(
							prog.Put(lock, struct{}{}, prog.Stop()),
							func(ids.ThreadID) action.Action {
								return prog.Return(nil)
							},
						)
					},
				)
			})
		},
	}
}

// s4 — "SC ref race": two threads write a shared ref to distinct values,
// the main thread reads it; under SC every observed value in {0,1,2}
// appears across a wide enough exploration.
func s4() Scenario {
	return Scenario{
		Name:        "sc-ref-race",
		Description: "r := newRef 0; fork(write r 1); fork(write r 2); read r",
		Expected:    "observed results are exactly {0, 1, 2} under SC, preemption bound >= 1",
		Config:      baseConfig(mem.SequentialConsistency),
		Build: func() action.Action {
			return prog.NewRef(0, func(r ids.RefID) action.Action {
				return prog.Fork(
					prog.WriteRef(r, 1, prog.Stop()),
					func(ids.ThreadID) action.Action {
						return prog.Fork(
							prog.WriteRef(r, 2, prog.Stop()),
							func(ids.ThreadID) action.Action {
								return prog.ReadRef(r, func(v action.Value) action.Action {
									return prog.Return(v)
								})
							},
						)
					},
				)
			})
		},
	}
}

// s5 — "TSO reordering": a Dekker-style pair of refs where, under TSO, both
// reads can observe the pre-write value (0) in the same execution — a
// result SC could never produce.
func s5() Scenario {
	return Scenario{
		Name:        "tso-reordering",
		Description: "r1,r2 := 0; fork(write r1 1; read r2); fork(write r2 1; read r1)",
		Expected:    "under TSO, an execution where both reads return 0 must appear",
		Config:      baseConfig(mem.TotalStoreOrder),
		Build: func() action.Action {
			return prog.NewRef(0, func(r1 ids.RefID) action.Action {
				return prog.NewRef(0, func(r2 ids.RefID) action.Action {
					return prog.NewVar(func(res1 ids.VarID) action.Action {
						return prog.NewVar(func(res2 ids.VarID) action.Action {
							threadA := prog.WriteRef(r1, 1, prog.ReadRef(r2, func(v action.Value) action.Action {
								return prog.Put(res1, v, prog.Stop())
							}))
							threadB := prog.WriteRef(r2, 1, prog.ReadRef(r1, func(v action.Value) action.Action {
								return prog.Put(res2, v, prog.Stop())
							}))
							return prog.Fork(threadA, func(ids.ThreadID) action.Action {
								return prog.Fork(threadB, func(ids.ThreadID) action.Action {
									return prog.Take(res1, func(v1 action.Value) action.Action {
										return prog.Take(res2, func(v2 action.Value) action.Action {
											return prog.Return([2]action.Value{v1, v2})
										})
									})
								})
							})
						})
					})
				})
			})
		},
	}
}

// s6 follows spec.md §8's example closely: v := empty; t := fork(mask(put
// v (); ...)); kill t; read v — but signals on entry to the mask, before
// the payload put, rather than after it. That ordering is deliberate: it
// guarantees main's kill is only ever issued once t has genuinely entered
// its masked region (t.Masking is already MaskedInterruptible, set by t's
// own Masking step), so the scenario never collides with the unrelated,
// still-open race where a freshly-forked thread defaults to Unmasked
// before it has run its own first action. But signalling *before* the put
// means main's kill frequently races ahead of t's remaining steps, landing
// while t is MaskedInterruptible and not yet blocked — exactly the case
// that parks the sender OnMask(t) until t later blocks, unmasks, or
// finishes. This is the real exercise of the wake-on-unmask path (the
// scan in World.wakeMask), not an avoidance of it.
func s6() Scenario {
	return Scenario{
		Name:        "masked-kill-is-safe",
		Description: "v := empty; t := fork(mask(put v ())); kill t; read v",
		Expected:    "never deadlocks, always returns ()",
		Config:      baseConfig(mem.SequentialConsistency),
		Build: func() action.Action {
			return prog.NewVar(func(v ids.VarID) action.Action {
				return prog.NewVar(func(signal ids.VarID) action.Action {
					body := prog.Mask(action.MaskedInterruptible, func(prev action.MaskingLevel) action.Action {
						return prog.Put(signal, struct{}{}, prog.Put(v, struct{}{}, prog.Unmask(prev, prog.Stop())))
					})
					return prog.Fork(body, func(t ids.ThreadID) action.Action {
						return prog.Take(signal, func(action.Value) action.Action {
							return prog.ThrowToThread(t, ErrKilled, prog.Read(v, func(val action.Value) action.Action {
								return prog.Return(val)
							}))
						})
					})
				})
			})
		},
	}
}
