package playback

import (
	"bytes"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// msConverter maps one tick to one millisecond.
type msConverter struct{}

func (msConverter) TickToTime(ticks int64) time.Duration { return time.Duration(ticks) * time.Millisecond }
func (msConverter) TimeToTick(t time.Duration) int64     { return int64(t / time.Millisecond) }

// fakeWall is a hand-advanced wall clock.
type fakeWall struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeWall() *fakeWall {
	return &fakeWall{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (w *fakeWall) now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.t
}

func (w *fakeWall) advance(d time.Duration) {
	w.mu.Lock()
	w.t = w.t.Add(d)
	w.mu.Unlock()
}

// recordSink collects everything sent to it.
type recordSink struct {
	mu    sync.Mutex
	msgs  []midi.Message
	times []time.Time
	fail  func(n int, msg midi.Message) error
}

func (s *recordSink) Send(msg midi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(len(s.msgs), msg); err != nil {
			return err
		}
	}
	s.msgs = append(s.msgs, msg)
	s.times = append(s.times, time.Now())
	return nil
}

func (s *recordSink) messages() []midi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]midi.Message(nil), s.msgs...)
}

func sameMessages(a, b []midi.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// notificationLog collects notifications by kind.
type notificationLog struct {
	mu  sync.Mutex
	all []Notification
}

func (l *notificationLog) handle(n Notification) {
	l.mu.Lock()
	l.all = append(l.all, n)
	l.mu.Unlock()
}

func (l *notificationLog) kind(k NotificationKind) []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Notification
	for _, n := range l.all {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// newManualPlayback builds a playback driven by TickClock and a fake wall
// clock.
func newManualPlayback(objects []TimedObject, opts ...Option) (*Playback, *recordSink, *fakeWall, *notificationLog, error) {
	sink := &recordSink{}
	opts = append([]Option{WithTickSource(NewManualTickSource())}, opts...)
	p, err := New(objects, msConverter{}, sink, opts...)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	wall := newFakeWall()
	p.clock.now = wall.now
	log := &notificationLog{}
	p.Subscribe(log.handle)
	return p, sink, wall, log, nil
}

func ev(ticks int64, msg midi.Message) TimedEvent {
	return TimedEvent{Ticks: ticks, Message: msg}
}
