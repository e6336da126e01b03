// Package fsm holds a small transition-table state machine shared by the
// verification, mint and media flows.
package fsm

import (
	"fmt"
	"slices"
	"sync"
)

// Table lists the states reachable from each state. A state with no entry
// (or an empty entry) is terminal.
type Table[S ~string] map[S][]S

// Allows reports whether from -> to appears in the table.
func (t Table[S]) Allows(from, to S) bool {
	return slices.Contains(t[from], to)
}

// IsTerminal reports whether no transition leaves s.
func (t Table[S]) IsTerminal(s S) bool {
	return len(t[s]) == 0
}

// TransitionError is returned when a transition is not in the table.
type TransitionError[S ~string] struct {
	From S
	To   S
}

func (e *TransitionError[S]) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// Machine tracks the current state of one flow instance. It is safe for
// concurrent use.
type Machine[S ~string] struct {
	mu      sync.Mutex
	table   Table[S]
	current S
	history []S
}

// New returns a machine positioned at initial.
func New[S ~string](table Table[S], initial S) *Machine[S] {
	return &Machine[S]{table: table, current: initial, history: []S{initial}}
}

// Current returns the state the machine is in.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to the target state if the table allows it.
func (m *Machine[S]) Transition(to S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.table.Allows(m.current, to) {
		return &TransitionError[S]{From: m.current, To: to}
	}
	m.current = to
	m.history = append(m.history, to)
	return nil
}

// Done reports whether the machine has reached a terminal state.
func (m *Machine[S]) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.IsTerminal(m.current)
}

// History returns every state visited, in order, starting with the initial one.
func (m *Machine[S]) History() []S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}
