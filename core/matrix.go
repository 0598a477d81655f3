package core

import (
	"errors"

	"gocoupler/protocol"
)

// MaxMatrixSize is the largest supported coupling matrix (one expander per row,
// eight outputs per expander).
const MaxMatrixSize = protocol.MaxMatrixSize

// ErrMalformedStream is returned when a matrix transmission would address a
// cell outside the 8x8 grid.
var ErrMalformedStream = errors.New("malformed matrix stream")

// Matrix is a fixed-capacity boolean grid with a live size N.
// Cells outside the live NxN region always read as zero.
type Matrix struct {
	cells [MaxMatrixSize]uint8 // bit j of cells[i] is cell (i, j)
	size  uint8
}

// Reset clears every cell and the live size
func (m *Matrix) Reset() {
	m.cells = [MaxMatrixSize]uint8{}
	m.size = 0
}

// Set writes one cell
func (m *Matrix) Set(row, col int, v bool) error {
	if row < 0 || row >= MaxMatrixSize || col < 0 || col >= MaxMatrixSize {
		return ErrMalformedStream
	}
	if v {
		m.cells[row] |= 1 << uint(col)
	} else {
		m.cells[row] &^= 1 << uint(col)
	}
	return nil
}

// Get reads one cell. Anything outside the live region is false.
func (m *Matrix) Get(row, col int) bool {
	n := int(m.size)
	if row < 0 || row >= n || col < 0 || col >= n {
		return false
	}
	return m.cells[row]&(1<<uint(col)) != 0
}

// Size returns the live dimension N
func (m *Matrix) Size() int {
	return int(m.size)
}

// SetSize sets the live dimension; values outside 0..8 are rejected
func (m *Matrix) SetSize(n int) error {
	if n < 0 || n > MaxMatrixSize {
		return ErrMalformedStream
	}
	m.size = uint8(n)
	return nil
}

// PackRow returns row i packed LSB-first, masked to the live columns.
// Rows at or beyond the live size pack to zero.
func (m *Matrix) PackRow(row int) uint8 {
	n := int(m.size)
	if row < 0 || row >= n {
		return 0
	}
	if n == MaxMatrixSize {
		return m.cells[row]
	}
	return m.cells[row] & uint8(1<<uint(n)-1)
}

// AppendDump appends the diagnostic dump: a blank line, one line per live
// row with space-separated 0/1 cells, and a closing blank line.
func (m *Matrix) AppendDump(dst []byte) []byte {
	dst = append(dst, '\n')
	n := m.Size()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j > 0 {
				dst = append(dst, ' ')
			}
			if m.Get(i, j) {
				dst = append(dst, '1')
			} else {
				dst = append(dst, '0')
			}
		}
		dst = append(dst, '\n')
	}
	return append(dst, '\n')
}
