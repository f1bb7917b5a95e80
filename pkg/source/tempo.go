package source

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

const (
	// DefaultResolution is the ticks per quarter note used when a file does
	// not say otherwise.
	DefaultResolution = 480
	// DefaultBPM applies until the first tempo change.
	DefaultBPM = 120.0
)

// TempoChange sets the tempo from Ticks onwards.
type TempoChange struct {
	Ticks int64   `json:"ticks"`
	BPM   float64 `json:"bpm"`
}

// TempoMap converts between ticks and wall-clock offsets for a piecewise
// constant tempo.
type TempoMap struct {
	resolution uint16
	changes    []TempoChange
	// starts[i] is the time at changes[i].Ticks
	starts []time.Duration
}

// NewTempoMap returns a map at DefaultBPM for the given resolution.
func NewTempoMap(resolution uint16) *TempoMap {
	if resolution == 0 {
		resolution = DefaultResolution
	}
	m := &TempoMap{
		resolution: resolution,
		changes:    []TempoChange{{Ticks: 0, BPM: DefaultBPM}},
	}
	m.rebuild()
	return m
}

// Resolution returns the ticks per quarter note.
func (m *TempoMap) Resolution() uint16 {
	return m.resolution
}

// Changes returns a copy of the tempo changes in tick order.
func (m *TempoMap) Changes() []TempoChange {
	return slices.Clone(m.changes)
}

// SetTempo sets the tempo from ticks onwards, replacing a change at the same
// tick.
func (m *TempoMap) SetTempo(ticks int64, bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("invalid tempo %v bpm", bpm)
	}
	if ticks < 0 {
		ticks = 0
	}
	i, found := slices.BinarySearchFunc(m.changes, ticks, func(c TempoChange, t int64) int {
		switch {
		case c.Ticks < t:
			return -1
		case c.Ticks > t:
			return 1
		}
		return 0
	})
	if found {
		m.changes[i].BPM = bpm
	} else {
		m.changes = slices.Insert(m.changes, i, TempoChange{Ticks: ticks, BPM: bpm})
	}
	m.rebuild()
	return nil
}

// TempoAt returns the tempo in effect at ticks.
func (m *TempoMap) TempoAt(ticks int64) float64 {
	return m.changes[m.segmentForTicks(ticks)].BPM
}

func (m *TempoMap) tickDuration(i int) float64 {
	return float64(time.Minute) / (m.changes[i].BPM * float64(m.resolution))
}

func (m *TempoMap) rebuild() {
	m.starts = make([]time.Duration, len(m.changes))
	for i := 1; i < len(m.changes); i++ {
		span := m.changes[i].Ticks - m.changes[i-1].Ticks
		m.starts[i] = m.starts[i-1] + time.Duration(math.Round(float64(span)*m.tickDuration(i-1)))
	}
}

func (m *TempoMap) segmentForTicks(ticks int64) int {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].Ticks > ticks })
	return max(i-1, 0)
}

// TickToTime returns the wall-clock offset of ticks at speed 1.
func (m *TempoMap) TickToTime(ticks int64) time.Duration {
	if ticks <= 0 {
		return 0
	}
	i := m.segmentForTicks(ticks)
	return m.starts[i] + time.Duration(math.Round(float64(ticks-m.changes[i].Ticks)*m.tickDuration(i)))
}

// TimeToTick returns the tick sounding at offset t, rounded down.
func (m *TempoMap) TimeToTick(t time.Duration) int64 {
	if t <= 0 {
		return 0
	}
	i := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > t })
	i = max(i-1, 0)
	// the epsilon absorbs float error on exact tick boundaries
	return m.changes[i].Ticks + int64(math.Floor(float64(t-m.starts[i])/m.tickDuration(i)+1e-6))
}
