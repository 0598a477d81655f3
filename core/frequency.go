package core

// FrequencySession links edge detection to the estimator for one
// FREQUENCY mode episode. It is owned by the sample-completion handler.
type FrequencySession struct {
	detector  *EdgeDetector
	estimator *MovingAverage

	prevEdge EdgeTimestamp
	hasPrev  bool

	lastPeriod uint32
	edges      uint32
}

// NewFrequencySession wires a detector to an estimator
func NewFrequencySession(detector *EdgeDetector, estimator *MovingAverage) *FrequencySession {
	return &FrequencySession{detector: detector, estimator: estimator}
}

// OnSample runs the edge detector and, when an edge completes a period,
// returns the new estimate and true.
func (s *FrequencySession) OnSample(value ADCValue, now uint32) (Frequency, bool) {
	edge, ok := s.detector.OnSample(value, now)
	if !ok {
		return 0, false
	}
	return s.OnEdge(edge)
}

// OnEdge records a confirmed rising edge. The first edge of a session only
// primes the previous timestamp.
func (s *FrequencySession) OnEdge(t EdgeTimestamp) (Frequency, bool) {
	s.edges++
	if !s.hasPrev {
		s.prevEdge = t
		s.hasPrev = true
		return 0, false
	}
	period := uint32(t - s.prevEdge)
	s.prevEdge = t
	s.lastPeriod = period
	return s.estimator.RecordPeriod(period), true
}

// LastPeriod returns the most recent measured period in ticks
func (s *FrequencySession) LastPeriod() uint32 {
	return s.lastPeriod
}

// Edges returns the number of confirmed edges since the last Reset
func (s *FrequencySession) Edges() uint32 {
	return s.edges
}

// Reset forgets the previous edge, the detector latch and the period history
func (s *FrequencySession) Reset() {
	s.hasPrev = false
	s.prevEdge = 0
	s.lastPeriod = 0
	s.edges = 0
	s.detector.Reset()
	s.estimator.Reset()
}
