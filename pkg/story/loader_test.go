package story

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	g, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "The Last Signal", g.Title)
	assert.Equal(t, NodeID("START"), g.Start)
	assert.Equal(t, "Cryo Bay", g.Variables[VarLocation])
	assert.Equal(t, float64(15), g.Variables[VarSignalStrength])
	assert.Equal(t, "", g.Variables[VarActivePersona])
	assert.Empty(t, g.Unreachable())

	n, ok := g.Node("aria_response")
	require.True(t, ok)
	frags := n.Fragments()
	require.Len(t, frags, 1)
	assert.True(t, frags[0].HasMarkers())

	n, ok = g.Node("signal_lost")
	require.True(t, ok)
	assert.True(t, n.Terminal)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "no nodes",
			doc:  "title: Empty\n",
		},
		{
			name: "missing start",
			doc: `
start: nowhere
nodes:
  - id: a
    body:
      - text: hi
`,
		},
		{
			name: "unknown choice target",
			doc: `
nodes:
  - id: START
    choices:
      - label: go
        target: missing
`,
		},
		{
			name: "unknown divert",
			doc: `
nodes:
  - id: START
    next: missing
`,
		},
		{
			name: "duplicate node",
			doc: `
nodes:
  - id: START
  - id: START
`,
		},
		{
			name: "divert cycle",
			doc: `
nodes:
  - id: START
    next: b
  - id: b
    next: START
`,
		},
		{
			name: "unterminated marker",
			doc: `
nodes:
  - id: START
    body:
      - text: "[AI_GENERATE: never closed"
`,
		},
		{
			name: "step with two kinds",
			doc: `
nodes:
  - id: START
    body:
      - text: hello
        give: keycard
`,
		},
		{
			name: "choices and next",
			doc: `
nodes:
  - id: START
    next: b
    choices:
      - label: go
        target: b
  - id: b
`,
		},
		{
			name: "non scalar variable",
			doc: `
variables:
  bad: [1, 2]
nodes:
  - id: START
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidStory)
		})
	}
}

func TestLoad_AssignmentsKeepDocumentOrder(t *testing.T) {
	doc := `
nodes:
  - id: START
    body:
      - set:
          zeta: 1
          alpha: two
          mid: true
      - text: done
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)

	n, _ := g.Node("START")
	require.Len(t, n.Steps, 4)
	assert.Equal(t, Assignment{Var: "zeta", Value: float64(1)}, n.Steps[0])
	assert.Equal(t, Assignment{Var: "alpha", Value: "two"}, n.Steps[1])
	assert.Equal(t, Assignment{Var: "mid", Value: true}, n.Steps[2])
	assert.True(t, n.Terminal)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.yaml")
	doc := `
title: Tiny
start: intro
nodes:
  - id: intro
    body:
      - text: |
          First paragraph.

          Second paragraph.
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	n, _ := g.Node("intro")
	assert.Len(t, n.Fragments(), 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGraph_Unreachable(t *testing.T) {
	doc := `
nodes:
  - id: START
    choices:
      - label: on
        target: b
  - id: b
  - id: orphan
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"orphan"}, g.Unreachable())
}
