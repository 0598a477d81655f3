package core

import "errors"

// ADCFullScale is the largest right-aligned 12-bit conversion
const ADCFullScale = 4095

// EdgeTimestamp is the tick time of a confirmed rising edge
type EdgeTimestamp uint32

// ErrThresholdOrder is returned when the low threshold is not below the high one
var ErrThresholdOrder = errors.New("hysteresis low threshold must be below high threshold")

// ThresholdFromPercent scales a percentage of full scale to an ADC value
func ThresholdFromPercent(percent uint8, fullScale ADCValue) ADCValue {
	return ADCValue(uint32(fullScale) * uint32(percent) / 100)
}

// EdgeDetector is a two-level Schmitt trigger over ADC samples.
// A rising edge is reported when the signal crosses above High while
// latched low; the latch only re-arms after the signal drops below Low.
// The first sample after construction or Reset only seeds the latch, so a
// signal that is already high never counts as a rising edge.
type EdgeDetector struct {
	low    ADCValue
	high   ADCValue
	isHigh bool
	primed bool
}

// NewEdgeDetector builds a detector; low must be strictly below high
func NewEdgeDetector(low, high ADCValue) (*EdgeDetector, error) {
	if low >= high {
		return nil, ErrThresholdOrder
	}
	return &EdgeDetector{low: low, high: high}, nil
}

// OnSample advances the latch. It returns the edge timestamp and true only
// on a LOW to HIGH transition.
func (d *EdgeDetector) OnSample(value ADCValue, now uint32) (EdgeTimestamp, bool) {
	if !d.primed {
		d.primed = true
		d.isHigh = value > d.high
		return 0, false
	}
	if d.isHigh {
		if value < d.low {
			d.isHigh = false
		}
		return 0, false
	}
	if value > d.high {
		d.isHigh = true
		return EdgeTimestamp(now), true
	}
	return 0, false
}

// High reports the current latch state
func (d *EdgeDetector) High() bool {
	return d.isHigh
}

// Thresholds returns the configured low and high levels
func (d *EdgeDetector) Thresholds() (low, high ADCValue) {
	return d.low, d.high
}

// Reset returns the latch to LOW and waits for a seeding sample
func (d *EdgeDetector) Reset() {
	d.isHigh = false
	d.primed = false
}
