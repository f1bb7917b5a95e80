package source

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/james-see/midiplayback/pkg/playback"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected Format
	}{
		{"test.mid", FormatMIDI},
		{"test.MIDI", FormatMIDI},
		{"test.seq", FormatSeq},
		{"test.syx", FormatSyx},
		{"test.txt", FormatUnknown},
		{"test", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			result := DetectFormat(tt.filename)
			if result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), FormatMIDI},
		{"SysEx message", []byte{0xF0, 0x00, 0x20, 0x32, 0x00, 0xF7}, FormatSyx},
		{"Short data", []byte{0x00, 0x01}, FormatUnknown},
		{"SEQ data (assumed)", []byte{0x3C, 0x01, 0x3E, 0x02, 0x40, 0x03}, FormatSeq},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectFormatFromContent(tt.data)
			if result != tt.expected {
				t.Errorf("DetectFormatFromContent() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestTempoMap(t *testing.T) {
	m := NewTempoMap(480)
	if err := m.SetTempo(960, 60); err != nil {
		t.Fatalf("SetTempo() error = %v", err)
	}

	tests := []struct {
		ticks int64
		time  time.Duration
	}{
		{0, 0},
		{240, 250 * time.Millisecond},
		{480, 500 * time.Millisecond},
		{960, time.Second},
		{1440, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := m.TickToTime(tt.ticks); got != tt.time {
			t.Errorf("TickToTime(%d) = %v, want %v", tt.ticks, got, tt.time)
		}
		if got := m.TimeToTick(tt.time); got != tt.ticks {
			t.Errorf("TimeToTick(%v) = %d, want %d", tt.time, got, tt.ticks)
		}
	}

	if got := m.TempoAt(1000); got != 60 {
		t.Errorf("TempoAt(1000) = %v, want 60", got)
	}
	if err := m.SetTempo(0, 0); err == nil {
		t.Error("SetTempo(0, 0) returned nil error")
	}
	if n := len(m.Changes()); n != 2 {
		t.Errorf("len(Changes()) = %d, want 2", n)
	}
}

func buildSMF(t *testing.T) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var track smf.Track
	track.Add(0, smf.MetaTempo(120))
	track.Add(0, midi.NoteOn(0, 60, 100))
	track.Add(480, midi.NoteOff(0, 60))
	track.Add(0, smf.MetaTempo(60))
	track.Add(0, midi.ControlChange(0, 7, 90))
	track.Add(480, midi.NoteOn(1, 62, 80))
	track.Close(240)
	if err := s.Add(track); err != nil {
		t.Fatalf("failed to add track: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write MIDI: %v", err)
	}
	return buf.Bytes()
}

func TestParseSMF(t *testing.T) {
	score, err := ParseSMF(buildSMF(t))
	if err != nil {
		t.Fatalf("ParseSMF() error = %v", err)
	}

	if score.Ticks != 1200 {
		t.Errorf("Ticks = %d, want 1200", score.Ticks)
	}
	if got := score.Duration(); got != 1500*time.Millisecond+500*time.Millisecond {
		t.Errorf("Duration() = %v, want 2s", got)
	}
	if score.NoteCount() != 2 {
		t.Errorf("NoteCount() = %d, want 2", score.NoteCount())
	}
	if len(score.Objects) != 3 {
		t.Fatalf("len(Objects) = %d, want 3", len(score.Objects))
	}

	first, ok := score.Objects[0].(playback.Note)
	if !ok || first.Key != 60 || first.Length != 480 || first.Velocity != 100 {
		t.Errorf("Objects[0] = %+v, want C4 note of 480 ticks", score.Objects[0])
	}
	cc, ok := score.Objects[1].(playback.TimedEvent)
	if !ok || cc.Ticks != 480 || !bytes.Equal(cc.Message, midi.ControlChange(0, 7, 90)) {
		t.Errorf("Objects[1] = %+v, want control change at 480", score.Objects[1])
	}
	last, ok := score.Objects[2].(playback.Note)
	if !ok || last.Channel != 1 || last.Length != 240 {
		t.Errorf("Objects[2] = %+v, want unterminated note ending at the last tick", score.Objects[2])
	}
}

func TestParseSMFInvalid(t *testing.T) {
	if _, err := ParseSMF([]byte("not a midi file")); err == nil {
		t.Error("ParseSMF() returned nil error for garbage")
	}
}

func seqData() []byte {
	data := make([]byte, PatternSteps*2)
	data[0], data[1] = 36, attrGate
	data[2], data[3] = 36, attrGate|attrTie
	data[4], data[5] = 48, attrGate|attrAccent|attrSlide
	data[6], data[7] = 0xFF, 0
	return data
}

func TestParseSeq(t *testing.T) {
	p, err := ParseSeq(seqData())
	if err != nil {
		t.Fatalf("ParseSeq() error = %v", err)
	}
	if len(p.Steps) != PatternSteps {
		t.Fatalf("len(Steps) = %d, want %d", len(p.Steps), PatternSteps)
	}
	if !p.Steps[1].Tie || !p.Steps[2].Accent || p.Steps[2].Velocity != 127 {
		t.Errorf("unexpected steps: %+v", p.Steps[:3])
	}
	if p.Steps[3].Note != 0x7F || p.Steps[3].Gate {
		t.Errorf("Steps[3] = %+v, want masked note and no gate", p.Steps[3])
	}

	if _, err := ParseSeq([]byte{0x3C, 0x01}); err == nil {
		t.Error("ParseSeq() returned nil error for short data")
	}
}

func TestPatternScore(t *testing.T) {
	p, err := ParseSeq(seqData())
	if err != nil {
		t.Fatalf("ParseSeq() error = %v", err)
	}
	score := p.Score(480)

	if score.Ticks != 16*120 {
		t.Errorf("Ticks = %d, want %d", score.Ticks, 16*120)
	}
	want := []playback.Note{
		{Ticks: 0, Length: 240 - 15, Key: 36, Velocity: 100, Metadata: 0},
		{Ticks: 240, Length: 150, Key: 48, Velocity: 127, Metadata: 2},
	}
	if len(score.Objects) != len(want) {
		t.Fatalf("len(Objects) = %d, want %d", len(score.Objects), len(want))
	}
	for i, w := range want {
		if got := score.Objects[i].(playback.Note); got != w {
			t.Errorf("Objects[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func syxData() []byte {
	data := []byte{SysExStart, 0x00, 0x20, 0x32, 0x00, 0x01, 0x40, 0x00}
	data = append(data, seqData()...)
	data[syxHeaderLen+6] = 0x7F
	return append(data, SysExEnd)
}

func TestParseSyx(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid", syxData(), false},
		{"too short", []byte{SysExStart}, true},
		{"missing end", syxData()[:20], true},
		{"not behringer", []byte{SysExStart, 0x41, 0x10, 0x42, 0x12, SysExEnd}, true},
		{"8-bit payload", []byte{SysExStart, 0x00, 0x20, 0x32, 0x80, SysExEnd}, true},
		{"truncated steps", []byte{SysExStart, 0x00, 0x20, 0x32, 0x00, 0x01, 0x40, 0x00, 0x3C, SysExEnd}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseSyx(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSyx() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(p.Steps) != PatternSteps {
				t.Errorf("len(Steps) = %d, want %d", len(p.Steps), PatternSteps)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"song.mid":    buildSMF(t),
		"bass.seq":    seqData(),
		"dump.syx":    syxData(),
		"noext":       buildSMF(t),
		"garbage.txt": []byte("xx"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		file    string
		format  Format
		wantErr bool
	}{
		{"song.mid", FormatMIDI, false},
		{"bass.seq", FormatSeq, false},
		{"dump.syx", FormatSyx, false},
		{"noext", FormatMIDI, false},
		{"garbage.txt", FormatUnknown, true},
		{"missing.mid", FormatUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			score, err := Load(filepath.Join(dir, tt.file))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if score.Format != tt.format {
				t.Errorf("Format = %v, want %v", score.Format, tt.format)
			}
			if score.Name == "" {
				t.Error("Name is empty")
			}
		})
	}

	_, err := Parse([]byte("xx"), FormatUnknown)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Parse() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestScorePlays(t *testing.T) {
	score, err := ParseSMF(buildSMF(t))
	if err != nil {
		t.Fatalf("ParseSMF() error = %v", err)
	}
	p, err := playback.New(score.Objects, score.Tempo, nil, playback.WithTickSource(playback.NewManualTickSource()))
	if err != nil {
		t.Fatalf("playback.New() error = %v", err)
	}
	defer p.Dispose()
	if got, want := p.Duration(), score.Duration(); got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
}
