package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/james-see/midiplayback/pkg/playback"
)

// ErrUnsupportedFormat is returned for data that no loader understands.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Score is a loaded piece ready to be handed to playback.New.
type Score struct {
	Name    string
	Format  Format
	Objects []playback.TimedObject
	Tempo   *TempoMap
	// Ticks is the last tick of the piece.
	Ticks int64
}

// Duration returns the length of the score at speed 1.
func (s *Score) Duration() time.Duration {
	return s.Tempo.TickToTime(s.Ticks)
}

// NoteCount returns the number of notes in the score.
func (s *Score) NoteCount() int {
	n := 0
	for _, obj := range s.Objects {
		if _, ok := obj.(playback.Note); ok {
			n++
		}
	}
	return n
}

// Load reads a score from path. The format is taken from the extension and
// falls back to sniffing the content.
func Load(path string) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	format := DetectFormat(path)
	if format == FormatUnknown {
		format = DetectFormatFromContent(data)
	}
	score, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	score.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return score, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Score, error) {
	switch format {
	case FormatMIDI:
		return ParseSMF(data)
	case FormatSeq:
		p, err := ParseSeq(data)
		if err != nil {
			return nil, err
		}
		score := p.Score(DefaultResolution)
		score.Format = FormatSeq
		return score, nil
	case FormatSyx:
		p, err := ParseSyx(data)
		if err != nil {
			return nil, err
		}
		score := p.Score(DefaultResolution)
		score.Format = FormatSyx
		return score, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
