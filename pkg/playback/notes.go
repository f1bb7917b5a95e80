package playback

import "time"

// noteKey identifies one logical note for the lifetime of a playback.
// parts is the number of raw events on each side of the note.
type noteKey struct {
	note  Note
	parts int
}

type pendingNote struct {
	started  int
	finished int
}

// noteAggregator turns played note-on/note-off events back into logical
// notes and batches them until the end of the dispatch step.
type noteAggregator struct {
	pending  map[*noteKey]*pendingNote
	order    []*noteKey
	started  []Note
	finished []Note
}

func newNoteAggregator() *noteAggregator {
	return &noteAggregator{pending: make(map[*noteKey]*pendingNote)}
}

func (a *noteAggregator) entry(key *noteKey) *pendingNote {
	p, ok := a.pending[key]
	if !ok {
		p = &pendingNote{}
		a.pending[key] = p
		a.order = append(a.order, key)
	}
	return p
}

func (a *noteAggregator) remove(key *noteKey) {
	delete(a.pending, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// observe records a sent event. Events that are not part of a note are
// ignored.
func (a *noteAggregator) observe(ev RawEvent) {
	if ev.note == nil {
		return
	}
	key := ev.note.key
	p := a.entry(key)
	if ev.note.start {
		p.started++
		if p.started == key.parts {
			a.started = append(a.started, key.note)
		}
		return
	}
	p.finished++
	if p.finished == key.parts {
		// a note whose start was suppressed never reported starting
		if p.started == key.parts {
			a.finished = append(a.finished, key.note)
		}
		a.remove(key)
	}
}

// active reports whether any part of the note has been played since the
// last reset.
func (a *noteAggregator) active(key *noteKey) bool {
	_, ok := a.pending[key]
	return ok
}

// sounding reports whether every start part of the note has been played
// and not every end part.
func (a *noteAggregator) sounding(key *noteKey) bool {
	p, ok := a.pending[key]
	return ok && p.started == key.parts && p.finished < key.parts
}

// flush returns and clears the notes batched since the last flush.
func (a *noteAggregator) flush() (started, finished []Note) {
	started, finished = a.started, a.finished
	a.started, a.finished = nil, nil
	return started, finished
}

// release drops every note that has started but not finished and returns
// them in start order.
func (a *noteAggregator) release() []Note {
	var notes []Note
	for _, key := range a.order {
		if a.sounding(key) {
			notes = append(notes, key.note)
		}
	}
	a.reset()
	return notes
}

func (a *noteAggregator) reset() {
	clear(a.pending)
	a.order = nil
}

// noteSpan is the stretch of time a note sounds, with the events that start
// it.
type noteSpan struct {
	key        *noteKey
	start, end time.Duration
	on         []RawEvent
}

// noteSpans collects the spans of every note in events, which are sorted by
// time, in start order.
func noteSpans(events []RawEvent) []noteSpan {
	var spans []noteSpan
	index := make(map[*noteKey]int)
	for _, ev := range events {
		if ev.note == nil {
			continue
		}
		i, ok := index[ev.note.key]
		if !ok {
			i = len(spans)
			index[ev.note.key] = i
			spans = append(spans, noteSpan{key: ev.note.key, start: ev.Time, end: ev.Time})
		}
		if ev.note.start {
			spans[i].on = append(spans[i].on, ev)
		} else {
			spans[i].end = ev.Time
		}
	}
	return spans
}

// at reports whether the note sounds across t. A note starting exactly at t
// is left to the queue.
func (s noteSpan) at(t time.Duration) bool {
	return s.start < t && s.end > t && len(s.on) > 0
}
