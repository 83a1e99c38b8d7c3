// Package metrics tracks per-transfer counters: segments sent/received,
// retransmissions, and throughput. Both sender and receiver run single-
// threaded, so this carries no mutex or atomics — it is plain state
// updated from the one goroutine driving a transfer, and read back
// (Snapshot) once the transfer ends.
package metrics

import "time"

// Transfer accumulates the counters one SendFile or Receive call
// produces, from start to finish.
type Transfer struct {
	BytesSent        uint64
	BytesReceived    uint64
	SegmentsSent     uint64
	SegmentsReceived uint64
	Retransmissions  uint64

	StartTime time.Time
	EndTime   time.Time
}

// NewTransfer starts a fresh counter set, stamped with the current time.
func NewTransfer() *Transfer {
	return &Transfer{StartTime: time.Now()}
}

func (m *Transfer) AddBytesSent(n uint64)     { m.BytesSent += n }
func (m *Transfer) AddBytesReceived(n uint64) { m.BytesReceived += n }
func (m *Transfer) AddSegmentSent()           { m.SegmentsSent++ }
func (m *Transfer) AddSegmentReceived()       { m.SegmentsReceived++ }
func (m *Transfer) AddRetransmission()        { m.Retransmissions++ }

// Finish stamps the end time; call once the transfer has concluded,
// successfully or not.
func (m *Transfer) Finish() {
	m.EndTime = time.Now()
}

// Duration is EndTime - StartTime, or the elapsed time so far if Finish
// has not been called yet.
func (m *Transfer) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// AverageSpeed is bytes/second over Duration, using whichever of
// BytesSent/BytesReceived is non-zero (a Transfer is used by exactly one
// side of a transfer, never both).
func (m *Transfer) AverageSpeed() float64 {
	d := m.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	useful := m.BytesSent
	if useful == 0 {
		useful = m.BytesReceived
	}
	return float64(useful) / d
}

// Snapshot returns a copy safe to log or serialize.
func (m *Transfer) Snapshot() Transfer {
	return *m
}
