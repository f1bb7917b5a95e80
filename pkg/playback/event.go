package playback

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// TimeConverter maps MIDI ticks to wall-clock offsets and back. It is only
// consulted while the event queue is built and when positions are reported
// in ticks.
type TimeConverter interface {
	TickToTime(ticks int64) time.Duration
	TimeToTick(t time.Duration) int64
}

// RawEvent is a single message scheduled at an absolute playback time.
// Events handed out by the playback are copies; the queued ones are never
// modified.
type RawEvent struct {
	Message  midi.Message
	Time     time.Duration
	Ticks    int64
	Metadata any

	note *noteLink
}

// noteLink ties a raw event to the logical note it was extracted from.
type noteLink struct {
	key   *noteKey
	start bool
}

// Clone returns a copy of e that owns its message bytes.
func (e RawEvent) Clone() RawEvent {
	c := e
	c.Message = append(midi.Message(nil), e.Message...)
	return c
}

// NoteStart reports whether e is the note-on part of a logical note.
func (e RawEvent) NoteStart() bool {
	return e.note != nil && e.note.start
}

// Note returns the logical note e belongs to, so a callback can treat the
// note-on and note-off of one note alike.
func (e RawEvent) Note() (Note, bool) {
	if e.note == nil {
		return Note{}, false
	}
	return e.note.key.note, true
}

// NoteEnd reports whether e is the note-off part of a logical note.
func (e RawEvent) NoteEnd() bool {
	return e.note != nil && !e.note.start
}

// TimedObject is anything that can be placed on the playback timeline.
type TimedObject interface {
	ObjectTicks() int64
}

// TimedEvent is a plain message at an absolute tick.
type TimedEvent struct {
	Ticks    int64
	Message  midi.Message
	Metadata any
}

func (e TimedEvent) ObjectTicks() int64 { return e.Ticks }

// Note is a note-on/note-off pair.
type Note struct {
	Ticks       int64
	Length      int64
	Channel     uint8
	Key         uint8
	Velocity    uint8
	OffVelocity uint8
	Metadata    any
}

func (n Note) ObjectTicks() int64 { return n.Ticks }

// EndTicks returns the tick of the note-off.
func (n Note) EndTicks() int64 { return n.Ticks + n.Length }

// OnMessage builds the note-on message of n.
func (n Note) OnMessage() midi.Message {
	return midi.NoteOn(n.Channel, n.Key, n.Velocity)
}

// OffMessage builds the note-off message of n.
func (n Note) OffMessage() midi.Message {
	if n.OffVelocity > 0 {
		return midi.NoteOffVelocity(n.Channel, n.Key, n.OffVelocity)
	}
	return midi.NoteOff(n.Channel, n.Key)
}

func (n Note) String() string {
	return fmt.Sprintf("%s ch%d @%d+%d", midi.Note(n.Key), n.Channel, n.Ticks, n.Length)
}

// Chord is a group of notes played as one object.
type Chord struct {
	Notes    []Note
	Metadata any
}

func (c Chord) ObjectTicks() int64 {
	if len(c.Notes) == 0 {
		return 0
	}
	t := c.Notes[0].Ticks
	for _, n := range c.Notes[1:] {
		t = min(t, n.Ticks)
	}
	return t
}

// ExtractFunc turns a timed object into raw events. It returns false when it
// does not handle the object's type so the next extractor can try.
type ExtractFunc func(obj TimedObject, conv TimeConverter) ([]RawEvent, bool)

// EventAt builds a raw event for msg at the given tick.
func EventAt(ticks int64, msg midi.Message, metadata any, conv TimeConverter) RawEvent {
	return RawEvent{
		Message:  msg,
		Time:     conv.TickToTime(ticks),
		Ticks:    ticks,
		Metadata: metadata,
	}
}

// NoteEvents returns the note-on and note-off events of n, linked so that
// the note aggregator can report n as a whole. Custom extractors use it to
// get note notifications for their own types.
func NoteEvents(n Note, conv TimeConverter) []RawEvent {
	key := &noteKey{note: n, parts: 1}
	on := EventAt(n.Ticks, n.OnMessage(), n.Metadata, conv)
	on.note = &noteLink{key: key, start: true}
	off := EventAt(n.EndTicks(), n.OffMessage(), n.Metadata, conv)
	off.note = &noteLink{key: key}
	return []RawEvent{on, off}
}

func extractBuiltin(obj TimedObject, conv TimeConverter) ([]RawEvent, bool) {
	switch o := obj.(type) {
	case TimedEvent:
		return []RawEvent{EventAt(o.Ticks, o.Message, o.Metadata, conv)}, true
	case *TimedEvent:
		return []RawEvent{EventAt(o.Ticks, o.Message, o.Metadata, conv)}, true
	case Note:
		return NoteEvents(o, conv), true
	case *Note:
		return NoteEvents(*o, conv), true
	case Chord:
		return chordEvents(o, conv), true
	case *Chord:
		return chordEvents(*o, conv), true
	}
	return nil, false
}

func chordEvents(c Chord, conv TimeConverter) []RawEvent {
	events := make([]RawEvent, 0, 2*len(c.Notes))
	for _, n := range c.Notes {
		if n.Metadata == nil {
			n.Metadata = c.Metadata
		}
		events = append(events, NoteEvents(n, conv)...)
	}
	return events
}

// extractEvents runs the extractors over objects and returns the events in
// playback order. Events at the same time keep their extraction order.
func extractEvents(objects []TimedObject, conv TimeConverter, extractors []ExtractFunc) ([]RawEvent, error) {
	var events []RawEvent
	for i, obj := range objects {
		if obj == nil {
			continue
		}
		evs, ok := extractOne(obj, conv, extractors)
		if !ok {
			return nil, &ConfigurationError{
				Name:   fmt.Sprintf("object %d", i),
				Value:  fmt.Sprintf("%T", obj),
				Reason: "no extractor for this type",
			}
		}
		events = append(events, evs...)
	}
	slices.SortStableFunc(events, func(a, b RawEvent) int {
		return cmp.Compare(a.Time, b.Time)
	})
	return events, nil
}

func extractOne(obj TimedObject, conv TimeConverter, extractors []ExtractFunc) ([]RawEvent, bool) {
	for _, fn := range extractors {
		if evs, ok := fn(obj, conv); ok {
			return evs, true
		}
	}
	return extractBuiltin(obj, conv)
}
