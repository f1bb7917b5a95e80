package playback

import (
	"sync"
	"time"
)

// NotificationKind identifies what a Notification reports.
type NotificationKind int

const (
	NotifyStarted NotificationKind = iota
	NotifyStopped
	NotifyFinished
	NotifyRepeatStarted
	NotifyEventPlayed
	NotifyNotesStarted
	NotifyNotesFinished
	NotifyError
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyStarted:
		return "started"
	case NotifyStopped:
		return "stopped"
	case NotifyFinished:
		return "finished"
	case NotifyRepeatStarted:
		return "repeat-started"
	case NotifyEventPlayed:
		return "event-played"
	case NotifyNotesStarted:
		return "notes-started"
	case NotifyNotesFinished:
		return "notes-finished"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is delivered to subscribers on the goroutine that caused it.
// Handlers may call any Playback method except TickClock.
type Notification struct {
	Kind NotificationKind
	// Time is the virtual time the notification was raised at.
	Time time.Duration
	// Event and Metadata are set for NotifyEventPlayed.
	Event    RawEvent
	Metadata any
	// Notes is set for NotifyNotesStarted and NotifyNotesFinished.
	Notes []Note
	// Err is set for NotifyError.
	Err error
}

type subscriber struct {
	id int
	fn func(Notification)
}

type observers struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func (o *observers) add(fn func(Notification)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) notify(n Notification) {
	o.mu.Lock()
	subs := o.subs
	o.mu.Unlock()
	for _, s := range subs {
		s.fn(n)
	}
}

// Subscribe registers fn for all notifications and returns a function that
// removes it.
func (p *Playback) Subscribe(fn func(Notification)) (unsubscribe func()) {
	return p.observers.add(fn)
}

// Watch returns a channel that receives notifications. Sends never block the
// playback; when the buffer is full the notification is dropped. cancel
// closes the channel.
func (p *Playback) Watch(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := p.Subscribe(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- n:
		default:
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}
