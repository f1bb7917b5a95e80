package sink

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/james-see/midiplayback/pkg/source"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// fakeOut implements drivers.Out for testing
type fakeOut struct {
	number int
	name   string
	open   bool
	sent   [][]byte
	err    error
}

func (f *fakeOut) Open() error { f.open = true; return nil }
func (f *fakeOut) Close() error { f.open = false; return nil }
func (f *fakeOut) IsOpen() bool { return f.open }
func (f *fakeOut) Number() int { return f.number }
func (f *fakeOut) String() string { return f.name }
func (f *fakeOut) Underlying() interface{} { return nil }
func (f *fakeOut) Send(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func TestFindPort(t *testing.T) {
	ports := []drivers.Out{
		&fakeOut{number: 0, name: "Midi Through Port-0"},
		&fakeOut{number: 1, name: "TD-3 MIDI 1"},
	}

	tests := []struct {
		selector string
		want     string
		wantErr  bool
	}{
		{"", "Midi Through Port-0", false},
		{"1", "TD-3 MIDI 1", false},
		{"td-3", "TD-3 MIDI 1", false},
		{"7", "", true},
		{"launchpad", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			port, err := FindPort(ports, tt.selector)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindPort(%q) error = %v, wantErr %v", tt.selector, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrPortNotFound) {
					t.Errorf("FindPort(%q) error = %v, want ErrPortNotFound", tt.selector, err)
				}
				return
			}
			if port.String() != tt.want {
				t.Errorf("FindPort(%q) = %s, want %s", tt.selector, port, tt.want)
			}
		})
	}

	if _, err := FindPort(nil, ""); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("FindPort(nil) error = %v, want ErrPortNotFound", err)
	}
}

func TestPortSink(t *testing.T) {
	out := &fakeOut{name: "fake"}
	s, err := NewPortSink(out)
	if err != nil {
		t.Fatalf("NewPortSink() error = %v", err)
	}
	if !out.IsOpen() {
		t.Error("port was not opened")
	}
	if s.Name() != "fake" {
		t.Errorf("Name() = %q, want fake", s.Name())
	}

	if err := s.Send(midi.NoteOn(0, 60, 100)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// note-on plus all-notes-off on 16 channels
	if len(out.sent) != 17 {
		t.Errorf("port got %d messages, want 17", len(out.sent))
	}
	if out.IsOpen() {
		t.Error("port still open after Close")
	}
	if err := s.Send(midi.NoteOn(0, 60, 100)); err == nil {
		t.Error("Send() after Close returned nil error")
	}
}

func TestPortSinkError(t *testing.T) {
	errBoom := errors.New("boom")
	out := &fakeOut{name: "fake", err: errBoom}
	s, err := NewPortSink(out)
	if err != nil {
		t.Fatalf("NewPortSink() error = %v", err)
	}
	if err := s.Send(midi.NoteOn(0, 60, 100)); !errors.Is(err, errBoom) {
		t.Errorf("Send() error = %v, want boom", err)
	}
}

func TestMulti(t *testing.T) {
	errBoom := errors.New("boom")
	a, b := NewRecorder(), NewRecorder()
	failing := &PortSink{out: &fakeOut{}, send: func(midi.Message) error { return errBoom }}

	m := Multi{a, failing, b}
	err := m.Send(midi.NoteOn(0, 60, 100))
	if !errors.Is(err, errBoom) {
		t.Errorf("Send() error = %v, want boom", err)
	}
	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("recorders got %d and %d messages, want 1 each", a.Len(), b.Len())
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(log.New(&buf))
	if err := s.Send(midi.NoteOn(2, 64, 90)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(buf.String(), "midi") {
		t.Errorf("log output %q does not mention the message", buf.String())
	}
}

func TestRecorderWriteSMF(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, 500 * time.Millisecond, time.Second}
	i := 0
	r := NewRecorder()
	r.now = func() time.Time {
		ts := base.Add(offsets[i])
		i++
		return ts
	}
	r.Send(midi.NoteOn(0, 60, 100))
	r.Send(midi.NoteOff(0, 60))
	r.Send(midi.NoteOn(0, 62, 100))

	events := r.Events()
	if len(events) != 3 || events[2].Offset != time.Second {
		t.Fatalf("Events() = %+v", events)
	}

	var buf bytes.Buffer
	if err := r.WriteSMF(&buf); err != nil {
		t.Fatalf("WriteSMF() error = %v", err)
	}
	score, err := source.ParseSMF(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseSMF() error = %v", err)
	}
	if score.NoteCount() != 2 {
		t.Errorf("NoteCount() = %d, want 2", score.NoteCount())
	}
	if got := score.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
}
