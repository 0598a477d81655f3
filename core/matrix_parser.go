package core

import "gocoupler/protocol"

// Matrix transmission markers
const (
	MatrixStart     = protocol.MatrixStart
	MatrixEnd       = protocol.MatrixEnd
	MatrixCellOne   = '1'
	MatrixCellZero  = '0'
	MatrixColumnSep = protocol.MatrixColumnSep
	MatrixRowSep    = protocol.MatrixRowSep
)

// ParseEvent is the outcome of feeding one byte to the parser
type ParseEvent uint8

const (
	ParseNone ParseEvent = iota
	ParseMatrixReady
	ParseMalformed
)

func (e ParseEvent) String() string {
	switch e {
	case ParseNone:
		return "none"
	case ParseMatrixReady:
		return "matrix-ready"
	case ParseMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// MatrixParser turns the textual matrix stream into a Matrix one byte at a
// time. It is not safe for concurrent use; only the byte handler feeds it.
type MatrixParser struct {
	work      Matrix
	row       int
	col       int
	receiving bool

	// Position of the last rejected cursor advance, for diagnostics
	badRow int
	badCol int
}

// NewMatrixParser returns an idle parser
func NewMatrixParser() *MatrixParser {
	return &MatrixParser{}
}

// Feed consumes one byte. On ParseMatrixReady the completed matrix is
// available from Matrix until the next START marker.
func (p *MatrixParser) Feed(b byte) ParseEvent {
	if b == MatrixStart {
		p.work.Reset()
		p.row = 0
		p.col = 0
		p.receiving = true
		return ParseNone
	}
	if !p.receiving {
		return ParseNone
	}

	switch b {
	case MatrixCellOne:
		p.work.Set(p.row, p.col, true)
	case MatrixCellZero:
		p.work.Set(p.row, p.col, false)
	case MatrixColumnSep:
		if p.col+1 >= MaxMatrixSize {
			return p.malformed(p.row, p.col+1)
		}
		p.col++
	case MatrixRowSep:
		if p.row+1 >= MaxMatrixSize {
			return p.malformed(p.row+1, 0)
		}
		p.row++
		p.col = 0
	case MatrixEnd:
		p.work.SetSize(p.row + 1)
		p.receiving = false
		return ParseMatrixReady
	}
	return ParseNone
}

func (p *MatrixParser) malformed(row, col int) ParseEvent {
	p.work.Reset()
	p.receiving = false
	p.badRow = row
	p.badCol = col
	return ParseMalformed
}

// Matrix returns the parser's working matrix
func (p *MatrixParser) Matrix() *Matrix {
	return &p.work
}

// Receiving reports whether a transmission is in progress
func (p *MatrixParser) Receiving() bool {
	return p.receiving
}

// Cursor returns the current row and column
func (p *MatrixParser) Cursor() (row, col int) {
	return p.row, p.col
}

// Rejected returns the out-of-grid position that caused the most recent
// ParseMalformed event
func (p *MatrixParser) Rejected() (row, col int) {
	return p.badRow, p.badCol
}
