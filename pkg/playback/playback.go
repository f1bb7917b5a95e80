// Package playback schedules MIDI events against a virtual clock and sends
// them to an output sink in real time.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// Sink receives the messages of a playback.
type Sink interface {
	Send(msg midi.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg midi.Message) error

func (f SinkFunc) Send(msg midi.Message) error { return f(msg) }

// State is the lifecycle state of a Playback.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateFinished
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFinished:
		return "finished"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Playback plays a fixed set of events through a sink.
type Playback struct {
	// dispatchMu serializes dispatch steps. Lock order: dispatchMu, mu.
	dispatchMu sync.Mutex
	// sendMu serializes access to the sink.
	sendMu sync.Mutex
	sink   Sink

	mu             sync.Mutex
	state          State
	clock          *Clock
	source         TickSource
	interval       time.Duration
	queue          *eventQueue
	notes          *noteAggregator
	callback       EventCallback
	loop           bool
	interruptNotes bool
	trackNotes     bool
	spans          []noteSpan
	// epoch changes on every seek, loop restart and stop so that a dispatch
	// step in progress does not keep popping. position changes only on seeks
	// and loop restarts.
	epoch    int
	position int
	runDone  chan struct{}

	observers observers
	logger    *log.Logger
}

// New builds a playback for objects. conv maps the objects' ticks to time.
// sink may be nil, in which case events are dispatched but not sent.
func New(objects []TimedObject, conv TimeConverter, sink Sink, opts ...Option) (*Playback, error) {
	if conv == nil {
		return nil, &ConfigurationError{Name: "time converter", Reason: "is nil"}
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateInterval(o.interval); err != nil {
		return nil, err
	}
	clock := NewClock()
	if err := clock.SetSpeed(o.speed); err != nil {
		return nil, err
	}
	events, err := extractEvents(objects, conv, o.extractors)
	if err != nil {
		return nil, err
	}
	if o.source == nil {
		o.source = NewHighPrecisionTickSource()
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}
	return &Playback{
		sink:           sink,
		clock:          clock,
		source:         o.source,
		interval:       o.interval,
		queue:          newEventQueue(events),
		notes:          newNoteAggregator(),
		callback:       o.callback,
		loop:           o.loop,
		interruptNotes: o.interruptNotes,
		trackNotes:     o.trackNotes,
		spans:          noteSpans(events),
		logger:         o.logger,
	}, nil
}

// Start begins or resumes playback. Starting a finished playback plays it
// again from the beginning. Starting a running playback does nothing. With
// note tracking, notes that sound across the start position and are not
// already sounding are started first.
func (p *Playback) Start() error {
	p.mu.Lock()
	switch p.state {
	case StateDisposed:
		p.mu.Unlock()
		return ErrDisposed
	case StateRunning:
		p.mu.Unlock()
		return nil
	case StateFinished:
		p.rewind(0)
	}
	resume := p.trackedNotes()
	position := p.position
	p.mu.Unlock()

	p.resume(resume, position)

	p.mu.Lock()
	switch p.state {
	case StateDisposed:
		p.mu.Unlock()
		return ErrDisposed
	case StateRunning:
		p.mu.Unlock()
		return nil
	}
	if err := p.source.Start(p.interval, p.onTick); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start tick source: %w", err)
	}
	p.clock.Start()
	p.state = StateRunning
	p.runDone = make(chan struct{})
	now := p.clock.CurrentTime()
	p.mu.Unlock()

	p.logger.Debug("playback started", "time", now)
	p.notify(Notification{Kind: NotifyStarted, Time: now})
	return nil
}

// Stop pauses playback, keeping the current position. Stopping a playback
// that is not running does nothing.
func (p *Playback) Stop() error {
	p.mu.Lock()
	switch p.state {
	case StateDisposed:
		p.mu.Unlock()
		return ErrDisposed
	case StateRunning:
	default:
		p.mu.Unlock()
		return nil
	}
	p.leaveRunning(StateStopped)
	now := p.clock.CurrentTime()
	var sounding []Note
	if p.interruptNotes {
		sounding = p.notes.release()
	}
	p.mu.Unlock()

	p.source.Stop()
	p.interrupt(sounding, now)
	p.logger.Debug("playback stopped", "time", now)
	p.notify(Notification{Kind: NotifyStopped, Time: now})
	return nil
}

// leaveRunning must be called with mu held and state == StateRunning.
func (p *Playback) leaveRunning(to State) {
	p.state = to
	p.clock.Stop()
	p.epoch++
	if p.runDone != nil {
		close(p.runDone)
		p.runDone = nil
	}
}

// rewind must be called with mu held.
func (p *Playback) rewind(t time.Duration) {
	p.queue.seek(t)
	p.clock.SetCurrentTime(t)
	p.notes.reset()
	p.epoch++
	p.position++
}

// trackedNotes returns the start events of notes sounding across the
// current time that have not been played. Must be called with mu held.
func (p *Playback) trackedNotes() []RawEvent {
	if !p.trackNotes {
		return nil
	}
	now := p.clock.CurrentTime()
	var events []RawEvent
	for _, s := range p.spans {
		if s.at(now) && !p.notes.active(s.key) {
			events = append(events, s.on...)
		}
	}
	return events
}

// resume plays the start events of tracked notes through the callback and
// the sink. position is the seek position they were collected at.
func (p *Playback) resume(events []RawEvent, position int) {
	if len(events) == 0 {
		return
	}
	now := p.clock.CurrentTime()
	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()

	for _, ev := range events {
		out := ev.Clone()
		if cb != nil {
			var keep bool
			if out, keep = cb(out, now, ev.Clone()); !keep {
				continue
			}
		}
		if err := p.send(out.Message); err != nil {
			p.logger.Warn("note-on failed", "event", out.Message, "err", err)
			continue
		}
		p.mu.Lock()
		if p.position == position {
			p.notes.observe(ev)
		}
		p.mu.Unlock()
		p.notify(Notification{Kind: NotifyEventPlayed, Time: now, Event: out, Metadata: out.Metadata})
	}
	p.flushNotes(now)
}

// interrupt sends note-offs for notes cut short by a stop or a seek.
func (p *Playback) interrupt(notes []Note, now time.Duration) {
	if len(notes) == 0 {
		return
	}
	for _, n := range notes {
		if err := p.send(n.OffMessage()); err != nil {
			p.logger.Warn("note-off failed", "note", n, "err", err)
		}
	}
	p.notify(Notification{Kind: NotifyNotesFinished, Time: now, Notes: notes})
}

// Play starts playback and blocks until it stops, finishes or ctx is done.
// When ctx ends first the playback is stopped and ctx's error returned.
func (p *Playback) Play(ctx context.Context) error {
	if err := p.Start(); err != nil {
		return err
	}
	p.mu.Lock()
	done := p.runDone
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if err := p.Stop(); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Dispose stops playback and releases the tick source and the sink. It is
// safe to call more than once.
func (p *Playback) Dispose() {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return
	}
	wasRunning := p.state == StateRunning
	if wasRunning {
		p.leaveRunning(StateDisposed)
	}
	p.state = StateDisposed
	now := p.clock.CurrentTime()
	var sounding []Note
	if wasRunning && p.interruptNotes {
		sounding = p.notes.release()
	}
	p.mu.Unlock()

	p.source.Stop()
	p.interrupt(sounding, now)

	// waits for a send in flight
	p.sendMu.Lock()
	p.sink = nil
	p.sendMu.Unlock()

	if wasRunning {
		p.notify(Notification{Kind: NotifyStopped, Time: now})
	}
	p.logger.Debug("playback disposed")
}

// Close disposes the playback.
func (p *Playback) Close() error {
	p.Dispose()
	return nil
}

// TickClock runs one dispatch step and returns the events it sent. It is
// only valid with a ManualSource such as ManualTickSource and must not be called from a
// notification handler or event callback.
func (p *Playback) TickClock() ([]RawEvent, error) {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return nil, ErrDisposed
	}
	if m, ok := p.source.(ManualSource); !ok || !m.Manual() {
		st := p.state
		p.mu.Unlock()
		return nil, &LifecycleError{Op: "tick clock", State: st, Reason: "tick source is not manual"}
	}
	p.mu.Unlock()

	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	return p.dispatchDue()
}

// onTick is called by the tick source. A tick that arrives while the
// previous step is still sending is skipped.
func (p *Playback) onTick() {
	if !p.dispatchMu.TryLock() {
		return
	}
	defer p.dispatchMu.Unlock()
	if _, err := p.dispatchDue(); err != nil {
		p.logger.Error("dispatch failed", "err", err)
		p.notify(Notification{Kind: NotifyError, Time: p.CurrentTime(), Err: err})
	}
}

// dispatchDue sends every queued event that is due at the current virtual
// time. Must be called with dispatchMu held.
func (p *Playback) dispatchDue() ([]RawEvent, error) {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil, nil
	}
	upto := p.clock.CurrentTime()
	epoch, position := p.epoch, p.position
	p.mu.Unlock()

	var (
		sent      []RawEvent
		exhausted bool
	)
	for {
		p.mu.Lock()
		if p.state != StateRunning || p.epoch != epoch {
			p.mu.Unlock()
			break
		}
		ev, ok := p.queue.popDue(upto)
		if !ok {
			exhausted = p.queue.exhausted()
			p.mu.Unlock()
			break
		}
		cb := p.callback
		p.mu.Unlock()

		out := ev.Clone()
		if cb != nil {
			var keep bool
			if out, keep = cb(out, upto, ev.Clone()); !keep {
				continue
			}
		}
		delivered, err := p.deliver(ev, out, epoch, position)
		if err != nil {
			p.flushNotes(upto)
			return sent, &SinkError{Event: out, Err: err}
		}
		if !delivered {
			break
		}
		sent = append(sent, out)
		p.notify(Notification{Kind: NotifyEventPlayed, Time: upto, Event: out, Metadata: out.Metadata})
	}
	p.flushNotes(upto)
	if exhausted {
		p.complete(epoch)
	}
	return sent, nil
}

// deliver sends out, the form of ev the callback returned, and records ev as
// played. An event overtaken by a seek or loop restart before it is sent is
// dropped. One overtaken while in flight, or by Stop or Dispose, is still
// delivered and followed by its note-off when notes are interrupted, since
// the stop or seek could not release it.
func (p *Playback) deliver(ev, out RawEvent, epoch, position int) (bool, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	moved := p.position != position
	p.mu.Unlock()
	if moved {
		return false, nil
	}

	if p.sink != nil {
		if err := p.sink.Send(out.Message); err != nil {
			return false, err
		}
	}

	p.mu.Lock()
	overtaken := p.epoch != epoch || p.state != StateRunning
	moved = p.position != position
	silence := overtaken && ev.NoteStart() && (p.interruptNotes || moved && p.trackNotes)
	if !silence && !moved {
		p.notes.observe(ev)
	}
	p.mu.Unlock()

	if silence && p.sink != nil {
		off := ev.note.key.note.OffMessage()
		var ch, key, vel uint8
		if out.Message.GetNoteOn(&ch, &key, &vel) {
			off = midi.NoteOff(ch, key)
		}
		if err := p.sink.Send(off); err != nil {
			p.logger.Warn("note-off failed", "note", ev.note.key.note, "err", err)
		}
	}
	return true, nil
}

func (p *Playback) send(msg midi.Message) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.sink == nil {
		return nil
	}
	return p.sink.Send(msg)
}

func (p *Playback) flushNotes(now time.Duration) {
	p.mu.Lock()
	started, finished := p.notes.flush()
	p.mu.Unlock()
	if len(finished) > 0 {
		p.notify(Notification{Kind: NotifyNotesFinished, Time: now, Notes: finished})
	}
	if len(started) > 0 {
		p.notify(Notification{Kind: NotifyNotesStarted, Time: now, Notes: started})
	}
}

// complete handles an exhausted queue: it either restarts the loop or
// finishes the playback.
func (p *Playback) complete(epoch int) {
	p.mu.Lock()
	if p.state != StateRunning || p.epoch != epoch {
		p.mu.Unlock()
		return
	}
	if p.loop && len(p.queue.events) > 0 {
		p.rewind(0)
		p.mu.Unlock()
		p.logger.Debug("playback repeat")
		p.notify(Notification{Kind: NotifyRepeatStarted})
		return
	}
	end := p.clock.CurrentTime()
	p.leaveRunning(StateFinished)
	p.mu.Unlock()

	p.source.Stop()
	p.logger.Debug("playback finished", "time", end)
	p.notify(Notification{Kind: NotifyFinished, Time: end})
}

func (p *Playback) notify(n Notification) {
	p.observers.notify(n)
}

// State returns the lifecycle state.
func (p *Playback) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsRunning reports whether the playback is running.
func (p *Playback) IsRunning() bool {
	return p.State() == StateRunning
}

// CurrentTime returns the virtual playback position.
func (p *Playback) CurrentTime() time.Duration {
	return p.clock.CurrentTime()
}

// Duration returns the time of the last event.
func (p *Playback) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.duration()
}

// Pending returns the number of events not yet dispatched in this pass.
func (p *Playback) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.pending()
}

// Speed returns the speed factor.
func (p *Playback) Speed() float64 {
	return p.clock.Speed()
}

// SetSpeed changes the speed factor. It takes effect from the current
// position and may be called while running.
func (p *Playback) SetSpeed(speed float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDisposed {
		return ErrDisposed
	}
	return p.clock.SetSpeed(speed)
}

// Loop reports whether playback restarts when it reaches the end.
func (p *Playback) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// SetLoop turns looping on or off. Turning it off while running lets the
// current pass finish.
func (p *Playback) SetLoop(loop bool) {
	p.mu.Lock()
	p.loop = loop
	p.mu.Unlock()
}

// SetEventCallback replaces the event callback. A nil callback sends every
// event unchanged.
func (p *Playback) SetEventCallback(cb EventCallback) {
	p.mu.Lock()
	p.callback = cb
	p.mu.Unlock()
}

// InterruptNotesOnStop reports whether Stop silences sounding notes.
func (p *Playback) InterruptNotesOnStop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interruptNotes
}

func (p *Playback) SetInterruptNotesOnStop(interrupt bool) {
	p.mu.Lock()
	p.interruptNotes = interrupt
	p.mu.Unlock()
}

// TrackNotes reports whether seeking and starting restart notes that sound
// across the new position.
func (p *Playback) TrackNotes() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackNotes
}

func (p *Playback) SetTrackNotes(track bool) {
	p.mu.Lock()
	p.trackNotes = track
	p.mu.Unlock()
}

// MoveToTime jumps to t, clamped to [0, Duration]. Events before t are
// skipped. A finished playback becomes stopped so that Start resumes from t.
// With note tracking, sounding notes are stopped and, if the playback is
// running, notes sounding across t are started again.
func (p *Playback) MoveToTime(t time.Duration) error {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	t = max(0, min(t, p.queue.duration()))
	var sounding []Note
	if p.interruptNotes || p.trackNotes {
		sounding = p.notes.release()
	}
	p.rewind(t)
	if p.state == StateFinished {
		p.state = StateStopped
	}
	// a running playback holds the clock at t while tracked notes restart
	var resume []RawEvent
	hold := p.state == StateRunning && p.trackNotes
	if hold {
		p.clock.Stop()
		resume = p.trackedNotes()
	}
	position := p.position
	p.mu.Unlock()

	p.interrupt(sounding, t)
	if hold {
		p.resume(resume, position)
		p.mu.Lock()
		if p.state == StateRunning && p.position == position {
			p.clock.Start()
		}
		p.mu.Unlock()
	}
	p.logger.Debug("playback moved", "time", t)
	return nil
}

// MoveToStart jumps to the beginning.
func (p *Playback) MoveToStart() error {
	return p.MoveToTime(0)
}

// MoveForward jumps d ahead of the current position.
func (p *Playback) MoveForward(d time.Duration) error {
	return p.MoveToTime(p.CurrentTime() + d)
}

// MoveBack jumps d behind the current position.
func (p *Playback) MoveBack(d time.Duration) error {
	return p.MoveToTime(p.CurrentTime() - d)
}
