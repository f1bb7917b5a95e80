package source

import (
	"errors"
	"fmt"

	"github.com/james-see/midiplayback/pkg/playback"
)

// PatternSteps is the number of steps in a TD-3 style pattern.
const PatternSteps = 16

// step attribute bits in .seq and .syx data
const (
	attrGate   = 0x01
	attrAccent = 0x02
	attrSlide  = 0x04
	attrTie    = 0x08
)

// Behringer SysEx header: F0, manufacturer 00 20 32, device, model, command
const syxHeaderLen = 8

// Step is one 16th-note step of a pattern.
type Step struct {
	Note     uint8
	Gate     bool
	Accent   bool
	Slide    bool
	Tie      bool
	Velocity uint8
}

// Pattern is a bass-line style step sequence.
type Pattern struct {
	Name    string
	Steps   []Step
	Tempo   float64
	Channel uint8
}

func decodeStep(note, attr byte) Step {
	s := Step{
		Note:     note & 0x7F,
		Gate:     attr&attrGate != 0,
		Accent:   attr&attrAccent != 0,
		Slide:    attr&attrSlide != 0,
		Tie:      attr&attrTie != 0,
		Velocity: 100,
	}
	if s.Accent {
		s.Velocity = 127
	}
	return s
}

// ParseSeq decodes a .seq pattern: two bytes per step, the note and its
// attribute bits.
func ParseSeq(data []byte) (*Pattern, error) {
	if len(data) < PatternSteps*2 {
		return nil, fmt.Errorf("seq data too short: got %d bytes, need %d", len(data), PatternSteps*2)
	}
	p := &Pattern{Name: "Pattern", Tempo: DefaultBPM}
	for i := 0; i < PatternSteps; i++ {
		p.Steps = append(p.Steps, decodeStep(data[i*2], data[i*2+1]))
	}
	return p, nil
}

// ValidateSyx checks SysEx framing and that every payload byte is 7-bit.
func ValidateSyx(data []byte) error {
	if len(data) < 2 {
		return errors.New("syx data too short")
	}
	if data[0] != SysExStart {
		return fmt.Errorf("invalid SysEx: expected start byte 0x%02X, got 0x%02X", SysExStart, data[0])
	}
	if data[len(data)-1] != SysExEnd {
		return fmt.Errorf("invalid SysEx: expected end byte 0x%02X, got 0x%02X", SysExEnd, data[len(data)-1])
	}
	for i := 1; i < len(data)-1; i++ {
		if data[i] > 127 {
			return fmt.Errorf("invalid SysEx: byte at position %d is > 127 (0x%02X)", i, data[i])
		}
	}
	return nil
}

// IsBehringerSyx reports whether data carries the Behringer manufacturer ID.
func IsBehringerSyx(data []byte) bool {
	return len(data) >= 5 &&
		data[0] == SysExStart &&
		data[1] == 0x00 &&
		data[2] == 0x20 &&
		data[3] == 0x32
}

// ParseSyx decodes a Behringer pattern dump.
func ParseSyx(data []byte) (*Pattern, error) {
	if err := ValidateSyx(data); err != nil {
		return nil, err
	}
	if !IsBehringerSyx(data) {
		return nil, errors.New("unrecognized SysEx format")
	}
	// header, step data and the trailing F7
	if need := syxHeaderLen + PatternSteps*2 + 1; len(data) < need {
		return nil, fmt.Errorf("syx data too short: got %d, need at least %d", len(data), need)
	}
	p := &Pattern{Name: "SysEx Pattern", Tempo: DefaultBPM}
	for i := 0; i < PatternSteps; i++ {
		off := syxHeaderLen + i*2
		p.Steps = append(p.Steps, decodeStep(data[off], data[off+1]))
	}
	return p, nil
}

// Score renders the pattern as one bar of 16th-note steps. Plain steps sound
// for 75% of the step, slides overlap into the next step and tied steps
// extend the note before them.
func (p *Pattern) Score(resolution uint16) *Score {
	if resolution == 0 {
		resolution = DefaultResolution
	}
	tempo := NewTempoMap(resolution)
	if p.Tempo > 0 {
		// only fails for non-positive tempos
		_ = tempo.SetTempo(0, p.Tempo)
	}

	stepTicks := int64(resolution) / 4
	gate := stepTicks * 3 / 4
	if gate == 0 {
		gate = stepTicks - 1
	}

	score := &Score{
		Name:   p.Name,
		Format: FormatSeq,
		Tempo:  tempo,
		Ticks:  int64(len(p.Steps)) * stepTicks,
	}
	for i, step := range p.Steps {
		if !step.Gate || (step.Tie && i > 0) {
			continue
		}
		length := gate
		if step.Slide {
			length = stepTicks + stepTicks/4
		}
		ties := 0
		for _, next := range p.Steps[i+1:] {
			if !next.Tie || !next.Gate {
				break
			}
			ties++
		}
		if ties > 0 {
			length = stepTicks * int64(ties+1)
			if !step.Slide {
				length -= stepTicks / 8
			}
		}
		velocity := step.Velocity
		if velocity == 0 {
			velocity = 100
		}
		if step.Accent {
			velocity = 127
		}
		score.Objects = append(score.Objects, playback.Note{
			Ticks:    int64(i) * stepTicks,
			Length:   length,
			Channel:  p.Channel,
			Key:      step.Note,
			Velocity: velocity,
			Metadata: i,
		})
	}
	return score
}
