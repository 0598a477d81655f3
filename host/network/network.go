// Package network models the coupling network the coupler realises: nodes
// (oscillators) with a nominal frequency and directed or bidirectional
// edges between them. Networks are stored as ".net" JSON files and turn
// into the adjacency matrix the device applies.
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gocoupler/protocol"
)

// FileExt is the conventional extension of saved networks
const FileExt = ".net"

var (
	// ErrInvalidNetwork wraps every validation failure
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrTooManyNodes is returned when the network exceeds the matrix size
	ErrTooManyNodes = fmt.Errorf("%w: more than %d nodes", protocol.ErrMatrixShape, protocol.MaxMatrixSize)

	// ErrEmpty is returned when there is nothing to couple
	ErrEmpty = fmt.Errorf("%w: network has no nodes", protocol.ErrMatrixShape)
)

// Node is one oscillator. Position and color only matter to editors and are
// kept so a loaded file saves back unchanged.
type Node struct {
	ID        int      `json:"id"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Frequency *float64 `json:"frequency"`
	Color     string   `json:"color,omitempty"`
}

// Edge couples Start to End, and End to Start when Bidirectional is set
type Edge struct {
	Start         int  `json:"start_node"`
	End           int  `json:"end_node"`
	Bidirectional bool `json:"bidirectional"`
}

// Network is the on-disk form of a coupling network
type Network struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Load decodes and validates a network
func Load(r io.Reader) (*Network, error) {
	var n Network
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetwork, err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// LoadFile reads a network from path
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Save validates n and writes it as JSON
func (n *Network) Save(w io.Writer) error {
	if err := n.Validate(); err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(n)
}

// SaveFile writes n to path
func (n *Network) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := n.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Validate checks that node IDs are unique and sequential from 1, and that
// every edge joins two distinct existing nodes.
func (n *Network) Validate() error {
	seen := make(map[int]bool, len(n.Nodes))
	for _, node := range n.Nodes {
		if node.ID < 1 || node.ID > len(n.Nodes) {
			return fmt.Errorf("%w: node id %d is not in 1..%d", ErrInvalidNetwork, node.ID, len(n.Nodes))
		}
		if seen[node.ID] {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidNetwork, node.ID)
		}
		if node.Frequency != nil && *node.Frequency < 0 {
			return fmt.Errorf("%w: node %d has a negative frequency", ErrInvalidNetwork, node.ID)
		}
		seen[node.ID] = true
	}
	for _, e := range n.Edges {
		if !seen[e.Start] || !seen[e.End] {
			return fmt.Errorf("%w: edge %d->%d names an unknown node", ErrInvalidNetwork, e.Start, e.End)
		}
		if e.Start == e.End {
			return fmt.Errorf("%w: edge %d->%d is a self loop", ErrInvalidNetwork, e.Start, e.End)
		}
	}
	return nil
}

// NextID returns the lowest free node ID
func (n *Network) NextID() int {
	used := make(map[int]bool, len(n.Nodes))
	for _, node := range n.Nodes {
		used[node.ID] = true
	}
	id := 1
	for used[id] {
		id++
	}
	return id
}

// AddNode appends a node with the next free ID and returns it
func (n *Network) AddNode(hz float64) int {
	id := n.NextID()
	f := hz
	n.Nodes = append(n.Nodes, Node{ID: id, Frequency: &f})
	return id
}

// Connect adds an edge between two nodes
func (n *Network) Connect(start, end int, bidirectional bool) {
	n.Edges = append(n.Edges, Edge{Start: start, End: end, Bidirectional: bidirectional})
}

// Node returns the node with the given ID
func (n *Network) Node(id int) (Node, bool) {
	for _, node := range n.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return Node{}, false
}

// Matrix builds the coupling matrix with nodes ordered by ID: cell [i][j] is
// set when node i drives node j.
func (n *Network) Matrix() ([][]bool, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if len(n.Nodes) == 0 {
		return nil, ErrEmpty
	}
	if len(n.Nodes) > protocol.MaxMatrixSize {
		return nil, ErrTooManyNodes
	}

	ids := make([]int, len(n.Nodes))
	for i, node := range n.Nodes {
		ids[i] = node.ID
	}
	sort.Ints(ids)
	index := make(map[int]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	m := make([][]bool, len(ids))
	for i := range m {
		m[i] = make([]bool, len(ids))
	}
	for _, e := range n.Edges {
		s, t := index[e.Start], index[e.End]
		m[s][t] = true
		if e.Bidirectional {
			m[t][s] = true
		}
	}
	return m, nil
}
