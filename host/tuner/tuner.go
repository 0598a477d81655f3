// Package tuner compares live frequency readings with a target so an
// oscillator can be trimmed by hand.
package tuner

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultRange is the half-width of the tuning window in hertz
	DefaultRange = 0.5

	// TunedBand is how close a reading must be to count as on target
	TunedBand = 0.01
)

// ErrTarget is returned for a non-positive target or range
var ErrTarget = errors.New("tuner: target and range must be positive")

// Verdict tells the operator which way to turn
type Verdict int

const (
	Tuned Verdict = iota
	TooHigh
	TooLow
)

func (v Verdict) String() string {
	switch v {
	case Tuned:
		return "tuned"
	case TooHigh:
		return "decrease"
	case TooLow:
		return "increase"
	default:
		return "unknown"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Zone grades the distance from target as a share of the window
type Zone int

const (
	ZoneClose Zone = iota // within 40% of the window
	ZoneNear              // within 80%
	ZoneFar
)

func (z Zone) String() string {
	switch z {
	case ZoneClose:
		return "close"
	case ZoneNear:
		return "near"
	default:
		return "far"
	}
}

func (z Zone) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

// Range status words
const (
	StatusInRange = "in-range"
	StatusHigh    = "high"
	StatusLow     = "low"
)

// Deviation is one reading measured against the target
type Deviation struct {
	Hz      float64 `json:"hz"`
	Target  float64 `json:"target"`
	Diff    float64 `json:"diff"`
	Percent float64 `json:"percent"` // Diff as a share of the window, clamped to ±100
	InRange bool    `json:"in_range"`
	Status  string  `json:"status"`
	Verdict Verdict `json:"verdict"`
	Zone    Zone    `json:"zone"`
}

func (d Deviation) String() string {
	return fmt.Sprintf("%.2f Hz  target %.2f  %+.2f Hz (%+.0f%%)  %s, %s",
		d.Hz, d.Target, d.Diff, d.Percent, d.Status, d.Verdict)
}

// Tuner holds the target and the window
type Tuner struct {
	target float64
	window float64
}

// New creates a tuner; a zero window selects DefaultRange
func New(target, window float64) (*Tuner, error) {
	if window == 0 {
		window = DefaultRange
	}
	if !(target > 0) || !(window > 0) || math.IsInf(target, 0) {
		return nil, ErrTarget
	}
	return &Tuner{target: target, window: window}, nil
}

// Target returns the target frequency
func (t *Tuner) Target() float64 {
	return t.target
}

// Compare grades one reading
func (t *Tuner) Compare(hz float64) Deviation {
	diff := hz - t.target
	pct := diff / t.window * 100
	pct = math.Max(-100, math.Min(100, pct))

	d := Deviation{
		Hz:      hz,
		Target:  t.target,
		Diff:    diff,
		Percent: pct,
		InRange: math.Abs(diff) <= t.window,
	}
	switch {
	case d.InRange:
		d.Status = StatusInRange
	case diff > 0:
		d.Status = StatusHigh
	default:
		d.Status = StatusLow
	}
	switch {
	case math.Abs(diff) < TunedBand:
		d.Verdict = Tuned
	case diff > 0:
		d.Verdict = TooHigh
	default:
		d.Verdict = TooLow
	}
	switch a := math.Abs(pct); {
	case a > 80:
		d.Zone = ZoneFar
	case a > 40:
		d.Zone = ZoneNear
	default:
		d.Zone = ZoneClose
	}
	return d
}
