package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a notable firmware event for post-mortem analysis
type Event struct {
	Type   uint8  // Event type code
	Clock  uint32 // System clock at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtModeFrequency  = 1 // entered FREQUENCY mode
	EvtModeMatrix     = 2 // entered MATRIX mode
	EvtMatrixReady    = 3 // matrix completed, Value1 = size
	EvtMatrixApplied  = 4 // outputs updated, Value1 = size
	EvtMalformed      = 5 // transmission discarded, Value1 = row, Value2 = col
	EvtMatrixDropped  = 6 // unconsumed matrix overwritten
	EvtEdge           = 7 // rising edge, Value1 = period ticks
	EvtExpanderFault  = 8 // expander write failed, Value1 = device index
	EvtSampleFault    = 9 // ADC read failed
	EvtOutputOverflow = 10
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	eventRing     [EventRingSize]Event
	eventRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Only call it from the main loop; handlers use RecordEvent.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordEvent captures an event in the ring buffer.
// Safe from handler context: O(1), no allocation.
func RecordEvent(eventType uint8, value1, value2 uint32) {
	state := disableInterrupts()
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   eventType,
		Clock:  GetTime(),
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	restoreInterrupts(state)
}

// Events returns the recorded events, oldest first
func Events() []Event {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Type == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func eventName(t uint8) string {
	switch t {
	case EvtModeFrequency:
		return "MODE_FREQ"
	case EvtModeMatrix:
		return "MODE_MATRIX"
	case EvtMatrixReady:
		return "MATRIX_READY"
	case EvtMatrixApplied:
		return "MATRIX_APPLIED"
	case EvtMalformed:
		return "MALFORMED!"
	case EvtMatrixDropped:
		return "MATRIX_DROPPED"
	case EvtEdge:
		return "EDGE"
	case EvtExpanderFault:
		return "EXPANDER_FAULT!"
	case EvtSampleFault:
		return "SAMPLE_FAULT!"
	case EvtOutputOverflow:
		return "OUTPUT_OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing outputs the event ring buffer through the debug writer
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENT] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENT] " + eventName(evt.Type) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENT] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	state := disableInterrupts()
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
	restoreInterrupts(state)
}
