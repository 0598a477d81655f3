package core

// Frequency is an estimate in hertz
type Frequency float64

// DefaultMovingAverageSize is the number of periods averaged
const DefaultMovingAverageSize = 10

// MovingAverage estimates frequency from the mean of the most recent
// periods. The history ring has a fixed capacity K chosen at construction.
type MovingAverage struct {
	periods        []uint32
	cursor         int
	count          int
	ticksPerSecond uint32
}

// NewMovingAverage creates an estimator over k periods measured in ticks
// of ticksPerSecond. A k below 1 is treated as 1.
func NewMovingAverage(k int, ticksPerSecond uint32) *MovingAverage {
	if k < 1 {
		k = 1
	}
	return &MovingAverage{
		periods:        make([]uint32, k),
		ticksPerSecond: ticksPerSecond,
	}
}

// RecordPeriod stores one period and returns the updated estimate.
// Only recorded periods take part in the mean, so the first estimates are
// not dragged down by empty slots.
func (m *MovingAverage) RecordPeriod(period uint32) Frequency {
	m.periods[m.cursor] = period
	m.cursor = (m.cursor + 1) % len(m.periods)
	if m.count < len(m.periods) {
		m.count++
	}
	return m.Estimate()
}

// Estimate returns ticksPerSecond / mean(period), or 0 with no usable history
func (m *MovingAverage) Estimate() Frequency {
	if m.count == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i < m.count; i++ {
		sum += uint64(m.periods[i])
	}
	if sum == 0 {
		return 0
	}
	return Frequency(float64(m.ticksPerSecond) * float64(m.count) / float64(sum))
}

// Len returns the number of periods currently averaged
func (m *MovingAverage) Len() int {
	return m.count
}

// Reset clears the history
func (m *MovingAverage) Reset() {
	for i := range m.periods {
		m.periods[i] = 0
	}
	m.cursor = 0
	m.count = 0
}
