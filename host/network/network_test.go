package network

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gocoupler/protocol"
)

const ringFile = `{
  "nodes": [
    {"id": 2, "x": 10, "y": 0, "frequency": 1.5, "color": "#6464ff"},
    {"id": 1, "x": 0, "y": 0, "frequency": 1.0, "color": "#6464ff"},
    {"id": 3, "x": 5, "y": 8, "frequency": null, "color": "#ff0000"}
  ],
  "edges": [
    {"start_node": 1, "end_node": 2, "bidirectional": false},
    {"start_node": 2, "end_node": 3, "bidirectional": true}
  ]
}`

func TestLoadAndMatrix(t *testing.T) {
	n, err := Load(strings.NewReader(ringFile))
	require.NoError(t, err)
	require.Len(t, n.Nodes, 3)

	node, ok := n.Node(3)
	require.True(t, ok)
	require.Nil(t, node.Frequency)

	m, err := n.Matrix()
	require.NoError(t, err)
	// Rows follow node IDs, not file order
	require.Equal(t, [][]bool{
		{false, true, false},
		{false, false, true},
		{false, true, false},
	}, m)

	text, err := protocol.EncodeMatrix(m)
	require.NoError(t, err)
	require.Equal(t, "<0,1,0;0,0,1;0,1,0>", string(text))
}

func TestSaveRoundTripsFile(t *testing.T) {
	n, err := Load(strings.NewReader(ringFile))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ring"+FileExt)
	require.NoError(t, n.SaveFile(path))

	back, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, n, back)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"duplicate id", `{"nodes":[{"id":1},{"id":1}],"edges":[]}`},
		{"gap in ids", `{"nodes":[{"id":1},{"id":3}],"edges":[]}`},
		{"zero id", `{"nodes":[{"id":0}],"edges":[]}`},
		{"unknown node", `{"nodes":[{"id":1},{"id":2}],"edges":[{"start_node":1,"end_node":5}]}`},
		{"self loop", `{"nodes":[{"id":1},{"id":2}],"edges":[{"start_node":2,"end_node":2}]}`},
		{"negative frequency", `{"nodes":[{"id":1,"frequency":-2}],"edges":[]}`},
		{"not json", `nodes: 1`},
	}
	for _, tt := range tests {
		_, err := Load(strings.NewReader(tt.json))
		require.ErrorIs(t, err, ErrInvalidNetwork, tt.name)
	}
}

func TestMatrixSizeLimits(t *testing.T) {
	var empty Network
	_, err := empty.Matrix()
	require.ErrorIs(t, err, protocol.ErrMatrixShape)

	var big Network
	for i := 0; i <= protocol.MaxMatrixSize; i++ {
		big.AddNode(1)
	}
	_, err = big.Matrix()
	require.True(t, errors.Is(err, ErrTooManyNodes))
	require.ErrorIs(t, err, protocol.ErrMatrixShape)
}

func TestBuildNetwork(t *testing.T) {
	var n Network
	a := n.AddNode(10)
	b := n.AddNode(12.5)
	require.Equal(t, 1, a)
	require.Equal(t, 2, b)
	require.Equal(t, 3, n.NextID())

	n.Connect(a, b, true)
	m, err := n.Matrix()
	require.NoError(t, err)
	require.Equal(t, [][]bool{{false, true}, {true, false}}, m)

	var buf bytes.Buffer
	require.NoError(t, n.Save(&buf))
	require.Contains(t, buf.String(), `"start_node":1`)

	// Saving refuses a network the device could not represent
	n.Connect(a, 9, false)
	require.Error(t, n.Save(&buf))
}
