package playback

import (
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

func TestExtractStableOrder(t *testing.T) {
	a := midi.NoteOff(0, 60)
	b := midi.NoteOn(0, 60, 100)
	objects := []TimedObject{
		ev(200, midi.ControlChange(0, 7, 100)),
		ev(100, a),
		ev(100, b),
		ev(0, midi.ProgramChange(0, 1)),
	}

	events, err := extractEvents(objects, msConverter{}, nil)
	if err != nil {
		t.Fatalf("extractEvents() error = %v", err)
	}
	got := make([]midi.Message, len(events))
	for i, e := range events {
		got[i] = e.Message
	}
	want := []midi.Message{midi.ProgramChange(0, 1), a, b, midi.ControlChange(0, 7, 100)}
	if !sameMessages(got, want) {
		t.Errorf("extractEvents() order = %v, want %v", got, want)
	}
}

func TestExtractNote(t *testing.T) {
	n := Note{Ticks: 10, Length: 90, Channel: 1, Key: 64, Velocity: 80}
	events, err := extractEvents([]TimedObject{n}, msConverter{}, nil)
	if err != nil {
		t.Fatalf("extractEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if !events[0].NoteStart() || events[0].Time != 10*time.Millisecond {
		t.Errorf("events[0] = %+v, want note start at 10ms", events[0])
	}
	if !events[1].NoteEnd() || events[1].Time != 100*time.Millisecond {
		t.Errorf("events[1] = %+v, want note end at 100ms", events[1])
	}
	if events[0].note.key != events[1].note.key {
		t.Error("note-on and note-off do not share a note key")
	}
}

type customObject struct{ at int64 }

func (c customObject) ObjectTicks() int64 { return c.at }

func TestExtractCustom(t *testing.T) {
	if _, err := extractEvents([]TimedObject{customObject{at: 5}}, msConverter{}, nil); err == nil {
		t.Fatal("extractEvents() with unknown type returned nil error")
	} else {
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("extractEvents() error = %T, want *ConfigurationError", err)
		}
	}

	extractor := func(obj TimedObject, conv TimeConverter) ([]RawEvent, bool) {
		c, ok := obj.(customObject)
		if !ok {
			return nil, false
		}
		return []RawEvent{EventAt(c.at, midi.ControlChange(0, 1, 0), "custom", conv)}, true
	}
	events, err := extractEvents([]TimedObject{customObject{at: 5}}, msConverter{}, []ExtractFunc{extractor})
	if err != nil {
		t.Fatalf("extractEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Metadata != "custom" || events[0].Time != 5*time.Millisecond {
		t.Errorf("extractEvents() = %+v", events)
	}
}

func TestEventQueue(t *testing.T) {
	events, err := extractEvents([]TimedObject{
		ev(0, midi.ControlChange(0, 1, 0)),
		ev(100, midi.ControlChange(0, 1, 1)),
		ev(100, midi.ControlChange(0, 1, 2)),
		ev(300, midi.ControlChange(0, 1, 3)),
	}, msConverter{}, nil)
	if err != nil {
		t.Fatalf("extractEvents() error = %v", err)
	}
	q := newEventQueue(events)

	tests := []struct {
		now  time.Duration
		want int
	}{
		{0, 1},
		{50 * time.Millisecond, 0},
		{100 * time.Millisecond, 2},
		{299 * time.Millisecond, 0},
		{time.Second, 1},
	}
	for _, tt := range tests {
		n := 0
		for {
			if _, ok := q.popDue(tt.now); !ok {
				break
			}
			n++
		}
		if n != tt.want {
			t.Errorf("popDue(%v) popped %d, want %d", tt.now, n, tt.want)
		}
	}
	if !q.exhausted() {
		t.Error("exhausted() = false, want true")
	}

	q.seek(100 * time.Millisecond)
	if q.pending() != 3 {
		t.Errorf("pending() after seek = %d, want 3", q.pending())
	}
	q.reset()
	if q.pending() != 4 {
		t.Errorf("pending() after reset = %d, want 4", q.pending())
	}
	if q.duration() != 300*time.Millisecond {
		t.Errorf("duration() = %v, want 300ms", q.duration())
	}
}
