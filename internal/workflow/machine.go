// Package workflow evaluates state transition tables.
//
// A table lists, for every event, the states it may fire from, the state it moves
// to, an optional guard and an optional effect. One executor runs every table in
// the application: validation requests, reviews and the case status.
package workflow

import (
	"fmt"
	"sort"
	"strings"
)

type State string

type Event string

// Transition is one row of a table. Guard runs before the state changes and may
// veto the transition; Effect runs after the state has been set on the subject.
type Transition[S any] struct {
	Event  Event
	From   []State
	To     State
	Guard  func(subject S) error
	Effect func(subject S) error
}

// Accessor reads and writes the state on a subject.
type Accessor[S any] struct {
	Get func(subject S) State
	Set func(subject S, state State)
}

type Machine[S any] struct {
	name     string
	accessor Accessor[S]
	table    map[Event]Transition[S]
	order    []Event
}

// NewMachine builds a machine. It panics on duplicate events since the table is
// static program data.
func NewMachine[S any](name string, accessor Accessor[S], transitions ...Transition[S]) *Machine[S] {
	m := &Machine[S]{
		name:     name,
		accessor: accessor,
		table:    make(map[Event]Transition[S], len(transitions)),
	}
	for _, t := range transitions {
		if _, dup := m.table[t.Event]; dup {
			panic(fmt.Sprintf("workflow %s: duplicate event %q", name, t.Event))
		}
		m.table[t.Event] = t
		m.order = append(m.order, t.Event)
	}
	return m
}

func (m *Machine[S]) Name() string {
	return m.name
}

// Can reports whether event is legal from state, ignoring guards.
func (m *Machine[S]) Can(from State, event Event) bool {
	t, ok := m.table[event]
	return ok && t.allows(from)
}

// Target returns the state event leads to.
func (m *Machine[S]) Target(event Event) (State, bool) {
	t, ok := m.table[event]
	return t.To, ok
}

// Fire runs event against subject: state check, guard, state write, effect. When
// the state check or guard fails the subject is left untouched. When the effect
// fails the new state has already been written to the subject; callers run Fire
// inside a transaction and discard the subject on error.
func (m *Machine[S]) Fire(subject S, event Event) error {
	t, ok := m.table[event]
	if !ok {
		return fmt.Errorf("workflow %s: unknown event %q", m.name, event)
	}

	from := m.accessor.Get(subject)
	if !t.allows(from) {
		return &InvalidTransitionError{Machine: m.name, Event: event, From: from}
	}

	if t.Guard != nil {
		if err := t.Guard(subject); err != nil {
			return err
		}
	}

	m.accessor.Set(subject, t.To)

	if t.Effect != nil {
		if err := t.Effect(subject); err != nil {
			return err
		}
	}
	return nil
}

// Edges enumerates the table as from -> event -> to triples, sorted for stable output.
func (m *Machine[S]) Edges() []Edge {
	var edges []Edge
	for _, ev := range m.order {
		t := m.table[ev]
		for _, from := range t.From {
			edges = append(edges, Edge{From: from, Event: ev, To: t.To})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].Event < edges[j].Event
	})
	return edges
}

type Edge struct {
	From  State
	Event Event
	To    State
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.From, e.Event, e.To)
}

func (t Transition[S]) allows(from State) bool {
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// InvalidTransitionError means the subject's persisted state does not permit the
// event; the caller's view is stale and should be re-fetched.
type InvalidTransitionError struct {
	Machine string
	Event   Event
	From    State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s",
		strings.ReplaceAll(string(e.Event), "_", " "), strings.ReplaceAll(e.Machine, "_", " "), e.From)
}
