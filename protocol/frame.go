package protocol

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Version of the coupler wire vocabulary
const Version = "1.0.0"

// Mode command bytes
const (
	StartFrequency byte = 0xF0
	StopFrequency  byte = 0xF1
)

// Matrix stream markers
const (
	MatrixStart     byte = '<'
	MatrixEnd       byte = '>'
	MatrixColumnSep byte = ','
	MatrixRowSep    byte = ';'
)

// MaxMatrixSize is the largest matrix the firmware accepts
const MaxMatrixSize = 8

// Responses sent by the firmware
const (
	AckStartFrequency = "Starting frequency measurement mode\r\n"
	AckStopFrequency  = "Stopping frequency measurement mode\r\n"
	MatrixAck         = "ACK\n"

	ReportPrefix = "#FRQ:"
	ReportSuffix = "$\r\n"
)

// MaxReportLen bounds one encoded frequency report
const MaxReportLen = len(ReportPrefix) + 10 + 1 + 2 + len(ReportSuffix)

var (
	ErrNotReport   = errors.New("not a frequency report")
	ErrMatrixShape = errors.New("matrix must be square with 1 to 8 rows")
	ErrMatrixText  = errors.New("malformed matrix text")
)

// AppendFrequencyReport appends "#FRQ:<int>.<frac>$\r\n". The fraction is
// truncated to two digits, never rounded. Negative and non-finite values
// report as zero; values beyond uint32 saturate.
func AppendFrequencyReport(dst []byte, hz float64) []byte {
	if math.IsNaN(hz) || hz < 0 {
		hz = 0
	}
	if hz > math.MaxUint32 {
		hz = math.MaxUint32
	}
	whole := uint32(hz)
	frac := uint32((hz - float64(whole)) * 100)
	if frac > 99 {
		frac = 99
	}

	dst = append(dst, ReportPrefix...)
	dst = strconv.AppendUint(dst, uint64(whole), 10)
	dst = append(dst, '.', byte('0'+frac/10), byte('0'+frac%10))
	return append(dst, ReportSuffix...)
}

// ParseFrequencyReport parses one report line. Trailing CR/LF is optional.
func ParseFrequencyReport(line string) (float64, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, ReportPrefix) || !strings.HasSuffix(line, "$") {
		return 0, ErrNotReport
	}
	body := line[len(ReportPrefix) : len(line)-1]
	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, ErrNotReport
	}
	return v, nil
}

// IsFrequencyReport reports whether line looks like a report
func IsFrequencyReport(line string) bool {
	return strings.HasPrefix(line, ReportPrefix)
}

func checkShape(m [][]bool) error {
	n := len(m)
	if n < 1 || n > MaxMatrixSize {
		return ErrMatrixShape
	}
	for _, row := range m {
		if len(row) != n {
			return ErrMatrixShape
		}
	}
	return nil
}

// EncodeMatrix renders a square matrix as "<1,0;0,1>"
func EncodeMatrix(m [][]bool) ([]byte, error) {
	if err := checkShape(m); err != nil {
		return nil, err
	}
	n := len(m)
	out := make([]byte, 0, 2*n*n+1)
	out = append(out, MatrixStart)
	for i, row := range m {
		if i > 0 {
			out = append(out, MatrixRowSep)
		}
		for j, cell := range row {
			if j > 0 {
				out = append(out, MatrixColumnSep)
			}
			if cell {
				out = append(out, '1')
			} else {
				out = append(out, '0')
			}
		}
	}
	return append(out, MatrixEnd), nil
}

// DecodeMatrix parses one "<...>" transmission into an NxN grid, where N is
// the number of rows. Short rows are zero-filled and cells past column N are
// dropped, matching what the firmware drives onto the expanders.
func DecodeMatrix(text []byte) ([][]bool, error) {
	s := strings.TrimSpace(string(text))
	if len(s) < 2 || s[0] != MatrixStart || s[len(s)-1] != MatrixEnd {
		return nil, ErrMatrixText
	}
	rows := strings.Split(s[1:len(s)-1], string(MatrixRowSep))
	if len(rows) > MaxMatrixSize {
		return nil, ErrMatrixShape
	}
	n := len(rows)
	out := make([][]bool, n)
	for i, row := range rows {
		out[i] = make([]bool, n)
		cells := strings.Split(row, string(MatrixColumnSep))
		if len(cells) > MaxMatrixSize {
			return nil, ErrMatrixShape
		}
		for j, cell := range cells {
			var v bool
			switch strings.TrimSpace(cell) {
			case "1":
				v = true
			case "0", "":
			default:
				return nil, ErrMatrixText
			}
			if j < n {
				out[i][j] = v
			}
		}
	}
	return out, nil
}

// ParseMatrixText accepts the shell shorthand "1,0;0,1" with or without
// the surrounding markers
func ParseMatrixText(s string) ([][]bool, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, string(MatrixStart)) {
		s = string(MatrixStart) + s + string(MatrixEnd)
	}
	return DecodeMatrix([]byte(s))
}

// ParseDumpRow parses one diagnostic dump line such as "1 0 1"
func ParseDumpRow(line string) ([]bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > MaxMatrixSize {
		return nil, ErrMatrixText
	}
	row := make([]bool, len(fields))
	for i, f := range fields {
		switch f {
		case "1":
			row[i] = true
		case "0":
		default:
			return nil, ErrMatrixText
		}
	}
	return row, nil
}
