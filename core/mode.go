package core

import (
	"sync/atomic"

	"gocoupler/protocol"
)

// Reserved mode command bytes. They are recognised in any mode and any
// parser state, and never reach the matrix parser.
const (
	CmdStartFrequency = protocol.StartFrequency
	CmdStopFrequency  = protocol.StopFrequency
)

// OperatingMode selects which half of the firmware is active
type OperatingMode uint32

const (
	ModeMatrix OperatingMode = iota
	ModeFrequency
)

func (m OperatingMode) String() string {
	switch m {
	case ModeMatrix:
		return "matrix"
	case ModeFrequency:
		return "frequency"
	default:
		return "unknown"
	}
}

// Action tells the byte handler what to do after a byte was processed
type Action uint8

const (
	ActionNone Action = iota
	ActionAckStart
	ActionAckStop
	ActionMatrixReady
	ActionMalformed
)

// Sampler is the arm/disarm capability of the analog sampling source
type Sampler interface {
	Arm()
	Disarm()
}

// Resetter clears per-episode state
type Resetter interface {
	Reset()
}

// ModeController routes incoming bytes between the mode commands and the
// matrix parser and owns the operating mode word.
type ModeController struct {
	mode    atomic.Uint32
	parser  *MatrixParser
	session Resetter
	sampler Sampler
}

// NewModeController starts in MATRIX mode
func NewModeController(parser *MatrixParser, session Resetter, sampler Sampler) *ModeController {
	mc := &ModeController{
		parser:  parser,
		session: session,
		sampler: sampler,
	}
	mc.mode.Store(uint32(ModeMatrix))
	return mc
}

// Mode returns the current operating mode. Safe from any context.
func (mc *ModeController) Mode() OperatingMode {
	return OperatingMode(mc.mode.Load())
}

// HandleByte processes one received byte. Only the byte handler calls it.
func (mc *ModeController) HandleByte(b byte) Action {
	switch b {
	case CmdStartFrequency:
		if mc.Mode() == ModeFrequency {
			return ActionNone
		}
		if mc.session != nil {
			mc.session.Reset()
		}
		mc.mode.Store(uint32(ModeFrequency))
		if mc.sampler != nil {
			mc.sampler.Arm()
		}
		return ActionAckStart
	case CmdStopFrequency:
		mc.mode.Store(uint32(ModeMatrix))
		if mc.sampler != nil {
			mc.sampler.Disarm()
		}
		return ActionAckStop
	}

	if mc.Mode() != ModeMatrix {
		return ActionNone
	}
	switch mc.parser.Feed(b) {
	case ParseMatrixReady:
		return ActionMatrixReady
	case ParseMalformed:
		return ActionMalformed
	}
	return ActionNone
}
