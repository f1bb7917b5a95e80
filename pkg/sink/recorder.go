package sink

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/james-see/midiplayback/pkg/source"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Recorded is a captured message and its offset from the first one.
type Recorded struct {
	Offset  time.Duration
	Message midi.Message
}

// Recorder captures sent messages with their timing so a performance can be
// written out as a Standard MIDI File.
type Recorder struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time
	events  []Recorded
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) Send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if len(r.events) == 0 {
		r.started = now
	}
	r.events = append(r.events, Recorded{
		Offset:  now.Sub(r.started),
		Message: slices.Clone(msg),
	})
	return nil
}

// Events returns a copy of what has been recorded.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WriteSMF writes the recording as a single track file at the default tempo.
func (r *Recorder) WriteSMF(w io.Writer) error {
	events := r.Events()
	tempo := source.NewTempoMap(source.DefaultResolution)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(tempo.Resolution())

	var track smf.Track
	track.Add(0, smf.MetaTempo(source.DefaultBPM))
	track.Add(0, smf.MetaMeter(4, 4))
	var last int64
	for _, ev := range events {
		tick := tempo.TimeToTick(ev.Offset)
		track.Add(uint32(tick-last), ev.Message)
		last = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write MIDI: %w", err)
	}
	return nil
}

// WriteFile writes the recording to path.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := r.WriteSMF(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
