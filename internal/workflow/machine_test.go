package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type door struct {
	state   State
	opened  int
	blocked bool
}

const (
	closed State = "closed"
	opened State = "open"
	locked State = "locked"
)

func newDoorMachine() *Machine[*door] {
	return NewMachine("door",
		Accessor[*door]{
			Get: func(d *door) State { return d.state },
			Set: func(d *door, s State) { d.state = s },
		},
		Transition[*door]{
			Event: "open",
			From:  []State{closed},
			To:    opened,
			Guard: func(d *door) error {
				if d.blocked {
					return errors.New("blocked")
				}
				return nil
			},
			Effect: func(d *door) error { d.opened++; return nil },
		},
		Transition[*door]{Event: "close", From: []State{opened}, To: closed},
		Transition[*door]{Event: "lock", From: []State{closed}, To: locked},
		Transition[*door]{
			Event:  "force",
			From:   []State{locked},
			To:     opened,
			Effect: func(d *door) error { return errors.New("alarm") },
		},
	)
}

func TestFireFollowsTable(t *testing.T) {
	m := newDoorMachine()
	d := &door{state: closed}

	require.NoError(t, m.Fire(d, "open"))
	assert.Equal(t, opened, d.state)
	assert.Equal(t, 1, d.opened)

	require.NoError(t, m.Fire(d, "close"))
	require.NoError(t, m.Fire(d, "lock"))
	assert.Equal(t, locked, d.state)
}

func TestFireRejectsIllegalEvent(t *testing.T) {
	m := newDoorMachine()
	d := &door{state: locked}

	err := m.Fire(d, "open")

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, locked, invalid.From)
	assert.Equal(t, Event("open"), invalid.Event)
	assert.Equal(t, locked, d.state)
	assert.Equal(t, "cannot open door in state locked", err.Error())
}

func TestGuardVetoLeavesStateUnchanged(t *testing.T) {
	m := newDoorMachine()
	d := &door{state: closed, blocked: true}

	assert.EqualError(t, m.Fire(d, "open"), "blocked")
	assert.Equal(t, closed, d.state)
	assert.Zero(t, d.opened)
}

func TestEffectErrorIsReturned(t *testing.T) {
	m := newDoorMachine()
	d := &door{state: locked}

	assert.EqualError(t, m.Fire(d, "force"), "alarm")
}

func TestUnknownEvent(t *testing.T) {
	m := newDoorMachine()
	err := m.Fire(&door{state: closed}, "paint")

	assert.Error(t, err)
	var invalid *InvalidTransitionError
	assert.False(t, errors.As(err, &invalid))
}

func TestEdgesEnumerateTable(t *testing.T) {
	m := newDoorMachine()

	var got []string
	for _, e := range m.Edges() {
		got = append(got, e.String())
	}
	assert.Equal(t, []string{
		"closed -lock-> locked",
		"closed -open-> open",
		"locked -force-> open",
		"open -close-> closed",
	}, got)

	assert.True(t, m.Can(closed, "lock"))
	assert.False(t, m.Can(opened, "lock"))
	to, ok := m.Target("force")
	assert.True(t, ok)
	assert.Equal(t, opened, to)
}

func TestDuplicateEventPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewMachine("dup", Accessor[*door]{},
			Transition[*door]{Event: "a", From: []State{closed}, To: opened},
			Transition[*door]{Event: "a", From: []State{opened}, To: closed},
		)
	})
}
