package playback

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// EventCallback is consulted for every due event before it is sent. It gets
// a copy of the event, the virtual time of the dispatch step and an
// unmodified copy of the queued event. It returns the event to send, which
// may be changed, or false to drop it.
type EventCallback func(ev RawEvent, now time.Duration, original RawEvent) (RawEvent, bool)

type options struct {
	source         TickSource
	interval       time.Duration
	speed          float64
	loop           bool
	callback       EventCallback
	extractors     []ExtractFunc
	interruptNotes bool
	trackNotes     bool
	logger         *log.Logger
}

func defaultOptions() options {
	return options{
		interval: DefaultInterval,
		speed:    DefaultSpeed,
	}
}

// Option configures a Playback.
type Option func(*options)

// WithTickSource replaces the default high precision tick source.
func WithTickSource(src TickSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithInterval sets the tick period. It must be at least MinInterval.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

func WithSpeed(speed float64) Option {
	return func(o *options) {
		o.speed = speed
	}
}

func WithLoop(loop bool) Option {
	return func(o *options) {
		o.loop = loop
	}
}

func WithEventCallback(cb EventCallback) Option {
	return func(o *options) {
		o.callback = cb
	}
}

// WithExtractor adds an extractor for custom timed object types. Extractors
// run in the order given, before the built-in ones.
func WithExtractor(fn ExtractFunc) Option {
	return func(o *options) {
		o.extractors = append(o.extractors, fn)
	}
}

// WithInterruptNotesOnStop makes Stop send note-offs for every sounding
// note.
func WithInterruptNotesOnStop(interrupt bool) Option {
	return func(o *options) {
		o.interruptNotes = interrupt
	}
}

// WithTrackNotes makes seeking and starting play the note-on of every note
// that sounds across the new position, so a seek into a long note does not
// leave it silent until its note-off.
func WithTrackNotes(track bool) Option {
	return func(o *options) {
		o.trackNotes = track
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
