package story

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapVars is a minimal Variables implementation for walker tests.
type mapVars struct {
	vars  map[string]any
	items []string
}

func newMapVars(g *Graph) *mapVars {
	return &mapVars{vars: g.InitialVariables()}
}

func (m *mapVars) SetVar(name string, value any) error {
	m.vars[name] = value
	return nil
}

func (m *mapVars) AddItem(item string) {
	m.items = append(m.items, item)
}

func collect(w *Walker) []string {
	var out []string
	for f := range w.Continue() {
		out = append(out, f.Plain())
	}
	return out
}

func labels(choices []Choice) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = c.Label
	}
	return out
}

func TestWalker_OpeningScene(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)

	w := NewWalker(g, newMapVars(g))
	assert.Empty(t, w.CurrentChoices(), "choices are hidden until the body is consumed")

	frags := collect(w)
	require.Len(t, frags, 3)
	assert.Equal(t, "The cold hits you first. Then the silence.", frags[0])

	assert.Equal(t, []string{
		"Look around the cryo bay",
		"Check your vital signs",
		"Call out for help",
	}, labels(w.CurrentChoices()))
	assert.False(t, w.Ended())
	assert.Empty(t, collect(w), "continue at a choice point yields nothing")
}

func TestWalker_ChooseChoice(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	vars := newMapVars(g)
	w := NewWalker(g, vars)
	collect(w)

	require.NoError(t, w.ChooseChoice(0))
	assert.Equal(t, NodeID("examine_cryo_bay"), w.Cursor().Node)
	assert.Equal(t, 0, w.Cursor().Step)

	frags := collect(w)
	require.Len(t, frags, 2)
	assert.Contains(t, frags[0], "cathedral of ice and metal")
	assert.Equal(t, "Cryo Bay", vars.vars[VarLocation])
	assert.Equal(t, []string{
		"Check the other active pods",
		"Look for an exit",
		"Examine the control panel",
	}, labels(w.CurrentChoices()))
}

func TestWalker_InvalidChoiceDoesNotMutate(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	vars := newMapVars(g)
	w := NewWalker(g, vars)
	collect(w)

	before := w.Cursor()
	for _, idx := range []int{-1, 3, 42} {
		err := w.ChooseChoice(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidChoice), "index %d", idx)
		assert.Equal(t, before, w.Cursor())
	}
	assert.Equal(t, g.InitialVariables(), vars.vars)
}

func TestWalker_ChooseBeforeChoicePoint(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	w := NewWalker(g, newMapVars(g))

	err = w.ChooseChoice(0)
	assert.ErrorIs(t, err, ErrInvalidChoice)
	assert.Equal(t, Cursor{Node: "START", Step: 0}, w.Cursor())
}

func TestWalker_ChoiceAssignments(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	vars := newMapVars(g)
	w := NewWalker(g, vars)
	require.NoError(t, w.Restore(Cursor{Node: "examine_terminal"}))

	frags := collect(w)
	require.Len(t, frags, 2)
	assert.Equal(t, "Terminal Interface", vars.vars[VarLocation])
	assert.Equal(t, "ARIA", vars.vars[VarActivePersona])

	require.NoError(t, w.ChooseChoice(1))
	assert.Equal(t, "Can you open this door?", vars.vars[VarLastPlayerInput])

	var got []Fragment
	for f := range w.Continue() {
		got = append(got, f)
	}
	require.Len(t, got, 1)
	assert.Equal(t, []Segment{AIReply{}}, got[0].Segments)
}

func TestWalker_FollowsDivert(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	w := NewWalker(g, newMapVars(g))
	require.NoError(t, w.Restore(Cursor{Node: "remember"}))

	frags := collect(w)
	require.Len(t, frags, 5, "three from remember, two from examine_cryo_bay")
	assert.Equal(t, NodeID("examine_cryo_bay"), w.Cursor().Node)
	assert.Len(t, w.CurrentChoices(), 3)
}

func TestWalker_TerminalIsConsistent(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	w := NewWalker(g, newMapVars(g))
	require.NoError(t, w.Restore(Cursor{Node: "signal_lost"}))

	assert.False(t, w.Ended())
	assert.Len(t, collect(w), 1)
	assert.True(t, w.Ended())
	assert.Empty(t, w.CurrentChoices())
	assert.Empty(t, collect(w))
	assert.ErrorIs(t, w.ChooseChoice(0), ErrInvalidChoice)
}

func TestWalker_ResumesAfterEarlyStop(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	w := NewWalker(g, newMapVars(g))

	for range w.Continue() {
		break
	}
	assert.Equal(t, Cursor{Node: "START", Step: 1}, w.Cursor())
	assert.Empty(t, w.CurrentChoices())

	assert.Len(t, collect(w), 2)
	assert.Len(t, w.CurrentChoices(), 3)
}

func TestWalker_Grants(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	vars := newMapVars(g)
	w := NewWalker(g, vars)
	require.NoError(t, w.Restore(Cursor{Node: "force_door"}))

	collect(w)
	assert.Equal(t, []string{"keycard", "hayes note"}, vars.items)
}

func TestWalker_Restore(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	w := NewWalker(g, newMapVars(g))

	tests := []struct {
		name    string
		cursor  Cursor
		wantErr bool
	}{
		{name: "start", cursor: Cursor{Node: "START"}},
		{name: "end of body", cursor: Cursor{Node: "START", Step: 3}},
		{name: "unknown node", cursor: Cursor{Node: "nowhere"}, wantErr: true},
		{name: "step past body", cursor: Cursor{Node: "START", Step: 4}, wantErr: true},
		{name: "negative step", cursor: Cursor{Node: "START", Step: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Restore(tt.cursor)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCursor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cursor, w.Cursor())
		})
	}
}

func TestWalker_Reset(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)
	w := NewWalker(g, newMapVars(g))
	collect(w)
	require.NoError(t, w.ChooseChoice(2))

	w.Reset()
	assert.Equal(t, Cursor{Node: "START"}, w.Cursor())
}
