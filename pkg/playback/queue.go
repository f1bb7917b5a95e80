package playback

import (
	"sort"
	"time"
)

// eventQueue is the sorted event list plus a read cursor. The list itself is
// never modified, so looping and seeking only move the cursor.
type eventQueue struct {
	events []RawEvent
	pos    int
}

func newEventQueue(events []RawEvent) *eventQueue {
	return &eventQueue{events: events}
}

// popDue removes and returns the head if it is due at now.
func (q *eventQueue) popDue(now time.Duration) (RawEvent, bool) {
	if q.pos >= len(q.events) || q.events[q.pos].Time > now {
		return RawEvent{}, false
	}
	ev := q.events[q.pos]
	q.pos++
	return ev, true
}

func (q *eventQueue) exhausted() bool {
	return q.pos >= len(q.events)
}

func (q *eventQueue) pending() int {
	return len(q.events) - q.pos
}

func (q *eventQueue) reset() {
	q.pos = 0
}

// seek positions the cursor on the first event at or after t.
func (q *eventQueue) seek(t time.Duration) {
	q.pos = sort.Search(len(q.events), func(i int) bool {
		return q.events[i].Time >= t
	})
}

// duration is the time of the last event.
func (q *eventQueue) duration() time.Duration {
	if len(q.events) == 0 {
		return 0
	}
	return q.events[len(q.events)-1].Time
}
