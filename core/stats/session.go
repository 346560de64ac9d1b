// Package stats accumulates per-session statistics of the received vehicle
// snapshots.
package stats

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/vehrelay/core/model"
)

// DefaultWindow is the number of speed samples kept for the summary.
const DefaultWindow = 4096

// Summary is a snapshot of a session.
type Summary struct {
	Received    int
	Skipped     int
	Transitions int
	SpeedMean   float64
	SpeedStdDev float64
	SpeedMax    float64
	BatteryMin  float64
	Duration    time.Duration
	// DroppedEvents counts tracker events not delivered to a slow reader.
	// It is filled by the owner of the event stream.
	DroppedEvents uint64
}

// Session is safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	window      int
	speeds      []float64
	next        int
	batteryMin  float64
	received    int
	skipped     int
	transitions int
	started     time.Time
	now         func() time.Time
}

// NewSession creates a session keeping the last window speed samples. A
// window <= 0 selects DefaultWindow.
func NewSession(window int) *Session {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Session{window: window, batteryMin: math.NaN(), started: time.Now(), now: time.Now}
}

// Observe records a decoded payload.
func (s *Session) Observe(p model.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received++
	if len(s.speeds) < s.window {
		s.speeds = append(s.speeds, p.Speed)
	} else {
		s.speeds[s.next] = p.Speed
		s.next = (s.next + 1) % s.window
	}
	if math.IsNaN(s.batteryMin) || p.Battery < s.batteryMin {
		s.batteryMin = p.Battery
	}
}

// Skip records a message that could not be decoded.
func (s *Session) Skip() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

// Transition records a tracker event.
func (s *Session) Transition() {
	s.mu.Lock()
	s.transitions++
	s.mu.Unlock()
}

// Summary computes the current statistics.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{
		Received:    s.received,
		Skipped:     s.skipped,
		Transitions: s.transitions,
		Duration:    s.now().Sub(s.started),
	}
	if !math.IsNaN(s.batteryMin) {
		sum.BatteryMin = s.batteryMin
	}
	switch len(s.speeds) {
	case 0:
	case 1:
		sum.SpeedMean = s.speeds[0]
		sum.SpeedMax = s.speeds[0]
	default:
		sum.SpeedMean, sum.SpeedStdDev = stat.MeanStdDev(s.speeds, nil)
		sum.SpeedMax = floats.Max(s.speeds)
	}
	return sum
}

// Fields returns the summary as structured log fields.
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"received":       s.Received,
		"skipped":        s.Skipped,
		"transitions":    s.Transitions,
		"dropped_events": s.DroppedEvents,
		"speed_mean":     s.SpeedMean,
		"speed_stddev":   s.SpeedStdDev,
		"speed_max":      s.SpeedMax,
		"battery_min":    s.BatteryMin,
		"duration_secs":  s.Duration.Seconds(),
	}
}
